package handler

import (
	"net/http"
	"time"

	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	service *services.UploadS3Service
}

func NewUploadHandler(service *services.UploadS3Service) *UploadHandler {
	return &UploadHandler{service: service}
}

// Presign serves POST /uploads/presign.
func (h *UploadHandler) Presign(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	var req httpdto.PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	chatID, err := httpdto.ParseID(req.ChatID, "chat_id")
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.service.CreatePresignedUpload(c.Request.Context(), services.PresignInput{
		ChatID:      chatID,
		UploaderID:  me,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresignUploadResponse{
		UploadURL: res.UploadURL,
		Method:    res.Method,
		ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339Nano),
		Attachment: httpdto.AttachmentDTO{
			URL:  res.Attachment.URL,
			Name: res.Attachment.Name,
			Size: res.Attachment.Size,
			Mime: res.Attachment.Mime,
		},
	}))
}
