package downloads

// DownloadStatus represents the current state of a download.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusDownloading DownloadStatus = "downloading"
	StatusExtracting  DownloadStatus = "extracting"
	StatusComplete    DownloadStatus = "complete"
	StatusError       DownloadStatus = "error"
	StatusCancelled   DownloadStatus = "cancelled"
)

// Progress represents the current progress of a single download.
type Progress struct {
	Status          DownloadStatus `json:"status"`
	Message         string         `json:"message"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	TotalBytes      int64          `json:"total_bytes"`
	Percent         float64        `json:"percent"`
	Error           string         `json:"error,omitempty"`
}

// ProgressCallback is a function called to report download progress.
type ProgressCallback func(Progress)

// ByteProgressCallback is a function called to report raw byte progress during download.
type ByteProgressCallback func(downloaded, total int64)
