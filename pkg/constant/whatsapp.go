package constant

const (
	SESSION_CREATED      = "Session created successfully"
	SESSION_CONNECTED    = "Session reconnect started"
	SESSION_DISCONNECTED = "Session disconnected successfully"
	SESSION_CLEANED      = "Session credentials purged"
	MESSAGE_SENT         = "Message sent successfully"
	MEDIA_SENT           = "Media message sent successfully"
	QR_CODE_GENERATED    = "QR code generated successfully"
	STATUS_RETRIEVED     = "Status retrieved successfully"
	CONTACTS_RETRIEVED   = "Contacts retrieved successfully"
	GROUPS_RETRIEVED     = "Groups retrieved successfully"
	SCRAPE_COMPLETED     = "Scrape completed"
	CAMPAIGN_CREATED     = "Broadcast campaign created"
	CAMPAIGN_STARTED     = "Broadcast execution started"
	CAMPAIGN_CANCELLED   = "Broadcast campaign cancelled"

	SESSION_NOT_CONNECTED = "Session is not connected"
	SESSION_NOT_FOUND     = "Session not found"
	INVALID_PHONE_NUMBER  = "Invalid phone number format"
	MEDIA_UPLOAD_FAILED   = "Failed to upload media"
	FILE_READ_FAILED     = "Failed to read file data"
)
