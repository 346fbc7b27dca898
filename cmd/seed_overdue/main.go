package main

import (
	"context"
	"log"
	"os"
	"time"

	"task_reminders/internal/db"
	"task_reminders/internal/domain"
	"task_reminders/internal/repository"
	"task_reminders/internal/service"
)

// Creates a test user and an already-overdue task, then prints a push-channel
// token for the user. Point a ws client at /ws?token=... and wait for the
// next scan cycle.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	ctx := context.Background()
	ur := repository.NewUserRepository(pool)
	tr := repository.NewTaskRepository(pool)

	u, err := ur.GetByUsername(ctx, "seed_overdue")
	if err != nil {
		u = &domain.User{Username: "seed_overdue"}
		if err := ur.Create(ctx, u); err != nil {
			log.Fatalf("create user: %v", err)
		}
	}

	task := &domain.Task{
		OwnerID:     u.ID,
		Title:       "Pay the invoice",
		Description: "Seeded task that is already overdue",
		Priority:    2,
		DueDate:     time.Now().UTC().Add(-10 * time.Minute),
	}
	if err := tr.Create(ctx, task); err != nil {
		log.Fatalf("create task: %v", err)
	}

	service.InitJWT()
	token, err := service.GenerateJWT(u.ID)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}

	log.Printf("user id=%d task id=%d due=%s", u.ID, task.ID, task.DueDate.Format(time.RFC3339))
	log.Printf("ws token: %s", token)
}
