package types

import "time"

// Download is an append-only record of a successful download.
type Download struct {
	ID           int       `json:"id" db:"id"`
	ResourceID   int       `json:"resource_id" db:"resource_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	DownloadedAt time.Time `json:"downloaded_at" db:"downloaded_at"`
}

// DownloadEntry is a download joined with the names it references.
type DownloadEntry struct {
	ResourceID    int       `json:"resource_id"`
	ResourceTitle string    `json:"resource_title"`
	UserID        int       `json:"user_id"`
	UserName      string    `json:"user_name"`
	DownloadedAt  time.Time `json:"downloaded_at"`
}

// PopularResource ranks a resource by download count.
type PopularResource struct {
	ResourceID    int    `json:"resource_id"`
	Title         string `json:"title"`
	SubjectName   string `json:"subject_name"`
	DownloadCount int    `json:"download_count"`
}

// SubjectResourceCount is the number of active resources in an active subject.
type SubjectResourceCount struct {
	SubjectID     int    `json:"subject_id"`
	SubjectName   string `json:"subject_name"`
	ResourceCount int    `json:"resource_count"`
}

// Summary holds the public platform totals.
type Summary struct {
	TotalUsers     int `json:"total_users"`
	TotalSubjects  int `json:"total_subjects"`
	TotalResources int `json:"total_resources"`
	TotalDownloads int `json:"total_downloads"`
}

// Dashboard is the administrator statistics view.
type Dashboard struct {
	Users               RoleCounts             `json:"users"`
	Summary             Summary                `json:"summary"`
	PopularResources    []PopularResource      `json:"popular_resources"`
	RecentUsers         []User                 `json:"recent_users"`
	RecentResources     []Resource             `json:"recent_resources"`
	RecentDownloads     []DownloadEntry        `json:"recent_downloads"`
	ResourcesPerSubject []SubjectResourceCount `json:"resources_per_subject"`
}
