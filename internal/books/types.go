// Package books contains the normalized data model and the source
// capability contract shared by every platform adapter.
package books

// Platform identifies one external book source.
type Platform string

const (
	PlatformCalibreWeb   Platform = "calibre_web"
	PlatformZLibrary     Platform = "zlibrary"
	PlatformArchiveOrg   Platform = "archive_org"
	PlatformLiber3       Platform = "liber3"
	PlatformAnnasArchive Platform = "annas_archive"
)

// AllPlatforms lists every platform this build knows about.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformCalibreWeb,
		PlatformZLibrary,
		PlatformArchiveOrg,
		PlatformLiber3,
		PlatformAnnasArchive,
	}
}

// ParsePlatform converts a string identifier to a Platform.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(s)
	for _, known := range AllPlatforms() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

func (p Platform) String() string {
	return string(p)
}

// BookInfo is the descriptive metadata for a logical book. Only Title is
// guaranteed to be set; everything else depends on what the source exposes.
type BookInfo struct {
	Title       string `json:"title"`
	Authors     string `json:"authors,omitempty"`
	Year        string `json:"year,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	FileSize    string `json:"fileSize,omitempty"`
	FileType    string `json:"fileType,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
}

// DownloadInfo describes how to fetch one item's bytes. The orchestration
// layer routes on Platform and never interprets the remaining fields; only
// the owning adapter does. Extra carries platform-specific parameters.
type DownloadInfo struct {
	Platform     Platform          `json:"platform"`
	DownloadURL  string            `json:"downloadUrl,omitempty"`
	BookID       string            `json:"bookId,omitempty"`
	HashID       string            `json:"hashId,omitempty"`
	FileName     string            `json:"fileName,omitempty"`
	RequiresAuth bool              `json:"requiresAuth,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// SearchResult pairs one matched book with the information needed to
// download it. Score is adapter-local relevance; nil means the source did
// not rank the result.
type SearchResult struct {
	Book     BookInfo     `json:"book"`
	Download DownloadInfo `json:"download"`
	Platform Platform     `json:"platform"`
	Score    *float64     `json:"score,omitempty"`
}

// DownloadResult is the outcome of one download attempt.
type DownloadResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"filePath,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
	Error    string `json:"error,omitempty"`
}

// Capabilities are the static flags an adapter declares at construction.
type Capabilities struct {
	// RequiresAuth marks sources that need a credential for every call.
	RequiresAuth bool
	// DownloadSupported is false for link-only sources that can locate a
	// book but cannot stream its bytes.
	DownloadSupported bool
	// NeedsResolution marks sources where an ID must first be resolved to
	// a transient URL before bytes can be fetched.
	NeedsResolution bool
}
