package domain

import "time"

// ReminderMessage is the queue payload produced by the scanner and consumed by
// the dispatcher. Timestamps marshal as RFC 3339 (UTC is enforced at write time).
type ReminderMessage struct {
	TaskID    int64     `json:"taskId"`
	UserID    int64     `json:"userId"`
	TaskTitle string    `json:"taskTitle"`
	DueDate   time.Time `json:"dueDate"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the message carries the fields the dispatcher needs.
// Anything else is a poison message and gets dropped.
func (m ReminderMessage) Valid() bool {
	return m.TaskID > 0 && m.UserID > 0
}

// EventTaskNotification is the named event pushed to clients.
const EventTaskNotification = "ReceiveTaskNotification"

// Notification is the server-to-client push payload.
type Notification struct {
	Type      string    `json:"type"`
	TaskID    int64     `json:"taskId"`
	TaskTitle string    `json:"taskTitle"`
	DueDate   time.Time `json:"dueDate"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}
