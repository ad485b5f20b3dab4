/*
 * Filecrate file API v1
 *
 * Transient file lifecycle & delivery pipeline
 */

package models

import "time"

// Status is the lifecycle state of an Original.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ToolKind selects the transformation requested for an upload.
type ToolKind string

const (
	ToolCompress   ToolKind = "compress"
	ToolSplit      ToolKind = "split"
	ToolPdfToWord  ToolKind = "pdf-to-word"
	ToolPdfToExcel ToolKind = "pdf-to-excel"
	ToolPdfToPptx  ToolKind = "pdf-to-pptx"
	ToolWordToPdf  ToolKind = "word-to-pdf"
)

// Failure categories surfaced to the client. The raw failure reason stays
// server-side.
const (
	FailureUnsupportedInput = "unsupported-input"
	FailureTimeout          = "timeout"
	FailureInternal         = "internal"
)

// Original is the user-uploaded source artifact. ExpiresAt is fixed at
// creation; rows past it are masked from every read path until the reaper
// removes them.
type Original struct {
	Id              string    `gorm:"column:id;primaryKey" json:"id"`
	OwnerRef        *string   `gorm:"column:owner_ref;index" json:"ownerRef,omitempty"`
	DisplayName     string    `json:"displayName"`
	ByteSize        int64     `json:"byteSize"`
	MimeType        string    `json:"mimeType"`
	ToolKind        ToolKind  `gorm:"column:tool_kind" json:"toolKind"`
	Options         string    `json:"-"`
	Status          Status    `gorm:"index" json:"status"`
	FailureCategory string    `json:"failureCategory,omitempty"`
	FailureReason   string    `json:"-"`
	StorageRef      string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `gorm:"index" json:"expiresAt"`
}

// Derived is the artifact produced by a successful transformation. It carries
// its own expiry and the opaque download token minted at creation.
type Derived struct {
	Id            string    `gorm:"column:id;primaryKey" json:"id"`
	OriginalID    string    `gorm:"column:original_id;index" json:"originalId"`
	StorageRef    string    `json:"-"`
	ByteSize      int64     `json:"byteSize"`
	DisplayName   string    `json:"displayName"`
	MimeType      string    `json:"mimeType"`
	DownloadToken string    `gorm:"uniqueIndex" json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `gorm:"index" json:"expiresAt"`
}

// Link representeert een hypermedia-link
type Link struct {
	Href string `json:"href"`
}

// Links bevat self/next/prev links volgens HAL-stijl
type Links struct {
	Self *Link `json:"self"`
	Next *Link `json:"next,omitempty"`
	Prev *Link `json:"prev,omitempty"`
}

// FileSummary is de externe view van een Original.
type FileSummary struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	ByteSize    int64     `json:"byteSize"`
	MimeType    string    `json:"mimeType"`
	ToolKind    ToolKind  `json:"toolKind"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Links       *Links    `json:"_links,omitempty"`
}

// DerivedView is the client-facing slice of a Derived record. The download
// token only travels here, on the status endpoint of a completed Original.
type DerivedView struct {
	DisplayName   string    `json:"displayName"`
	ByteSize      int64     `json:"byteSize"`
	MimeType      string    `json:"mimeType"`
	DownloadToken string    `json:"downloadToken"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// FileDetail is the status-endpoint view.
type FileDetail struct {
	FileSummary
	FailureCategory string       `json:"failureCategory,omitempty"`
	Derived         *DerivedView `json:"derived,omitempty"`
}

type Pagination struct {
	Next           *int `json:"next,omitempty"`
	Previous       *int `json:"previous,omitempty"`
	CurrentPage    int  `json:"currentPage"`
	RecordsPerPage int  `json:"recordsPerPage"`
	TotalPages     int  `json:"totalPages"`
	TotalRecords   int  `json:"totalRecords"`
}

type ListFilesParams struct {
	Page    int `query:"page"`
	PerPage int `query:"perPage"`
	BaseURL string // not from query, set in handler
}

type FileParams struct {
	Id string `path:"id"`
}
