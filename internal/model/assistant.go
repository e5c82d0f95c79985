package model

type ChatReply struct {
	Reply     string `json:"reply"`
	MessageID int64  `json:"message_id"`
	Timestamp string `json:"timestamp"`
}

type ChatEntry struct {
	ID      int64  `json:"id"`
	Sender  string `json:"sender"`
	Text    string `json:"text"`
	Time    string `json:"time"`
	Context string `json:"context"`
}

type GPAResult struct {
	GPA            float64 `json:"gpa"`
	TotalCredits   float64 `json:"total_credits"`
	TotalPoints    float64 `json:"total_points"`
	Scale          string  `json:"scale"`
	Classification string  `json:"classification"`
	GradesCount    int     `json:"grades_count"`
}

type ServiceStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
