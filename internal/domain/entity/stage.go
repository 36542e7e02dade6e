package entity

// Stage names one of the four pipeline stages an article moves through.
// It selects which *Status field (and completion timestamp) a state-store
// update targets.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageDownload  Stage = "download"
	StageParse     Stage = "parse"
	StageStorage   Stage = "storage"
)

// Valid reports whether s is one of the four known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageDiscovery, StageDownload, StageParse, StageStorage:
		return true
	}
	return false
}

// Status returns the article's status for the given stage.
func (a *Article) Status(stage Stage) StageStatus {
	switch stage {
	case StageDiscovery:
		return a.DiscoveryStatus
	case StageDownload:
		return a.DownloadStatus
	case StageParse:
		return a.ParseStatus
	case StageStorage:
		return a.StorageStatus
	}
	return ""
}

// ArtifactPaths groups the filesystem locations DownloadEngine and
// ExtractionEngine record on the row once artifacts exist on disk.
type ArtifactPaths struct {
	HTMLFilePath     string
	ContentFilePath  string
	MetadataFilePath string
	ImagesDirPath    string
}
