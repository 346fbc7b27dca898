package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"task_reminders/internal/domain"
	"task_reminders/internal/queue"
	"task_reminders/internal/service"
)

// End-to-end smoke against a running server: opens push channels for two
// users, publishes a reminder for the first, and checks that exactly that
// user's connection receives the notification.
func main() {
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	stream := os.Getenv("QUEUE_NAME")
	if stream == "" {
		stream = "TaskReminders"
	}

	service.InitJWT()

	const userA, userB = int64(3001), int64(3002)

	tokenA, err := service.GenerateJWT(userA)
	if err != nil {
		log.Fatalf("gen token A: %v", err)
	}
	tokenB, err := service.GenerateJWT(userB)
	if err != nil {
		log.Fatalf("gen token B: %v", err)
	}

	dialer := websocket.DefaultDialer

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	connA, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, tokenA), nil)
	if err != nil {
		log.Fatalf("dial A: %v", err)
	}
	defer connA.Close()

	connB, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, tokenB), nil)
	if err != nil {
		log.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	// give the server a moment to register both connections
	time.Sleep(300 * time.Millisecond)

	ctx := context.Background()
	q := queue.New(ctx, queue.Options{Addr: redisAddr, Stream: stream})
	if !q.Enabled() {
		log.Fatal("reminder queue unreachable")
	}

	msg := domain.ReminderMessage{
		TaskID:    9001,
		UserID:    userA,
		TaskTitle: "smoke task",
		DueDate:   time.Now().UTC().Add(-time.Minute),
		Timestamp: time.Now().UTC(),
	}
	body, _ := json.Marshal(msg)
	if err := q.Publish(ctx, body); err != nil {
		log.Fatalf("publish: %v", err)
	}
	log.Println("reminder published, waiting for push...")

	connA.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := connA.ReadMessage()
	if err != nil {
		log.Fatalf("A did not receive notification: %v", err)
	}

	var n domain.Notification
	if err := json.Unmarshal(raw, &n); err != nil || n.Type != domain.EventTaskNotification {
		log.Fatalf("A received unexpected payload: %s", string(raw))
	}
	log.Printf("A got: %s", string(raw))

	// B must stay silent
	connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, leaked, err := connB.ReadMessage(); err == nil {
		log.Fatalf("B unexpectedly received: %s", string(leaked))
	}
	log.Println("B received nothing, as expected")

	log.Println("smoke test finished")
}
