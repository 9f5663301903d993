package main

import (
	"context"
	"flag"
	"fmt"
	"therapyroom/internal/config"
	"therapyroom/internal/model"
	"therapyroom/internal/repository"
	"therapyroom/internal/service"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// seed schedules one session and prints a connection token for each side.
func main() {
	therapistID := flag.String("therapist", "therapist-demo", "therapist user id")
	studentID := flag.String("student", "student-demo", "student user id")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer client.Disconnect(ctx)

	sessions := repository.NewSessionRepo(client.Database(cfg.MongoDatabase))
	session := &model.Session{
		ID:          uuid.New().String(),
		TherapistID: *therapistID,
		StudentID:   *studentID,
		Status:      model.SessionScheduled,
		ScheduledAt: time.Now().UTC(),
	}
	if err := sessions.Create(ctx, session); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert session")
	}

	// Revocation is not needed to issue tokens
	auth := service.NewAuthService(cfg.JWTSecret, nil)
	therapistToken, err := auth.IssueToken(session.TherapistID, model.RoleTherapist, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("issue therapist token")
	}
	studentToken, err := auth.IssueToken(session.StudentID, model.RoleStudent, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("issue student token")
	}

	fmt.Printf("Seeded session %s\n", session.ID)
	fmt.Printf("therapist (%s): %s\n", session.TherapistID, therapistToken)
	fmt.Printf("student   (%s): %s\n", session.StudentID, studentToken)
	fmt.Printf("\nJoin with: {\"type\":\"join-room\",\"payload\":{\"sessionId\":%q}}\n", session.ID)
}
