package dto

type SlackNotificationRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type NotificationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type NotificationUsage struct {
	Message string   `json:"message"`
	Usage   string   `json:"usage"`
	Types   []string `json:"types"`
}
