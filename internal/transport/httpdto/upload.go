package httpdto

// PresignUploadRequest is used for POST /uploads/presign
type PresignUploadRequest struct {
	ChatID      string `json:"chat_id" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	FileSize    int64  `json:"file_size" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// PresignUploadResponse carries the URL the client PUTs the blob to and the
// attachment metadata to send afterwards.
type PresignUploadResponse struct {
	UploadURL  string        `json:"upload_url"`
	Method     string        `json:"method"`
	ExpiresAt  string        `json:"expires_at"`
	Attachment AttachmentDTO `json:"attachment"`
}
