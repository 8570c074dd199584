package dtos

type SendMessageDTO struct {
	SessionID   string `json:"session_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Message     string `json:"message" binding:"required"`
}

type SendMediaMessageDTO struct {
	SessionID   string `json:"session_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Caption     string `json:"caption"`
	MediaData   []byte `json:"media_data" binding:"required"`
	MimeType    string `json:"mime_type" binding:"required"`
	FileName    string `json:"file_name"`
}

type MessageResponseDTO struct {
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	To        string `json:"to"`
}
