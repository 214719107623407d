package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"liveflow/backend/internal/catalog"
	"liveflow/backend/internal/config"
	"liveflow/backend/internal/models"
	"liveflow/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  seed-streams
  add-stream <id> <title> <tag> <streamer> [viewers]
  ban <session_id> [duration_in_hours]
  unban <session_id>
  list-complaints [status] [limit]
  confirm-complaint <complaint_id>
  dismiss-complaint <complaint_id>`

// adminStore is the part of storage.Service the CLI needs.
type adminStore interface {
	catalog.Store
	BanSession(ctx context.Context, sid string, d time.Duration) error
	UnbanSession(ctx context.Context, sid string) error
	GetComplaintByID(ctx context.Context, id uint) (*models.Complaint, error)
	ListComplaints(ctx context.Context, status string, limit int) ([]models.Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id uint, status string) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.Complaint{}, &models.StreamInfo{}); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6380"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: os.Getenv("REDIS_PASSWORD")})

	if err := run(context.Background(), storage.NewStorageService(db, rdb), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s adminStore, args []string, out io.Writer) error {
	command, args := args[0], args[1:]

	switch command {
	case "seed-streams":
		n, err := catalog.NewService(s).SeedDefaults(ctx)
		if err != nil {
			return fmt.Errorf("error seeding streams: %w", err)
		}
		fmt.Fprintf(out, "Seeded %d streams.\n", n)

	case "add-stream":
		if len(args) < 4 {
			return fmt.Errorf("usage: admin add-stream <id> <title> <tag> <streamer> [viewers]")
		}
		tag, err := models.ParseIdentityTag(args[2])
		if err != nil {
			return err
		}
		stream := models.StreamInfo{ID: args[0], Title: args[1], Tag: tag, StreamerName: args[3]}
		if len(args) > 4 {
			if stream.ViewerCount, err = strconv.Atoi(args[4]); err != nil {
				return fmt.Errorf("invalid viewer count %q", args[4])
			}
		}
		if err := catalog.NewService(s).Add(ctx, stream); err != nil {
			return fmt.Errorf("error adding stream: %w", err)
		}
		fmt.Fprintf(out, "Stream %s added.\n", stream.ID)

	case "ban":
		if len(args) < 1 {
			return fmt.Errorf("usage: admin ban <session_id> [duration_in_hours]")
		}
		duration := config.BanDuration
		if len(args) > 1 {
			hours, err := strconv.Atoi(args[1])
			if err != nil || hours <= 0 {
				return fmt.Errorf("invalid duration %q, please provide a positive integer", args[1])
			}
			duration = time.Duration(hours) * time.Hour
		}
		if err := s.BanSession(ctx, args[0], duration); err != nil {
			return fmt.Errorf("error banning session: %w", err)
		}
		fmt.Fprintf(out, "Session %s has been banned for %s.\n", args[0], duration)

	case "unban":
		if len(args) != 1 {
			return fmt.Errorf("usage: admin unban <session_id>")
		}
		if err := s.UnbanSession(ctx, args[0]); err != nil {
			return fmt.Errorf("error unbanning session: %w", err)
		}
		fmt.Fprintf(out, "Session %s has been unbanned.\n", args[0])

	case "list-complaints":
		status, limit := "", 50
		if len(args) > 0 {
			status = args[0]
		}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			limit = n
		}
		complaints, err := s.ListComplaints(ctx, status, limit)
		if err != nil {
			return fmt.Errorf("error listing complaints: %w", err)
		}
		for _, c := range complaints {
			fmt.Fprintf(out, "%d\t%s\t%s\t%s\tweight=%d\t%s\n",
				c.ID, c.Status, c.TargetID, c.Reason, c.Weight, c.CreatedAt.Format(time.RFC3339))
		}

	case "confirm-complaint":
		id, err := complaintID(args)
		if err != nil {
			return err
		}
		if err := confirmComplaint(ctx, s, id); err != nil {
			return fmt.Errorf("error confirming complaint: %w", err)
		}
		fmt.Fprintf(out, "Complaint %d has been confirmed.\n", id)

	case "dismiss-complaint":
		id, err := complaintID(args)
		if err != nil {
			return err
		}
		if err := s.UpdateComplaintStatus(ctx, id, storage.ComplaintDismissed); err != nil {
			return fmt.Errorf("error dismissing complaint: %w", err)
		}
		fmt.Fprintf(out, "Complaint %d has been dismissed.\n", id)

	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	return nil
}

func complaintID(args []string) (uint, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: admin <confirm-complaint|dismiss-complaint> <complaint_id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid complaint ID %q, please provide an integer", args[0])
	}
	return uint(id), nil
}

// confirmComplaint marks the complaint confirmed and bans its target.
func confirmComplaint(ctx context.Context, s adminStore, id uint) error {
	complaint, err := s.GetComplaintByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.UpdateComplaintStatus(ctx, id, storage.ComplaintConfirmed); err != nil {
		return err
	}
	if complaint.TargetID == "" {
		return nil
	}
	return s.BanSession(ctx, complaint.TargetID, config.BanDuration)
}
