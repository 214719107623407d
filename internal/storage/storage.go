package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"liveflow/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Complaint statuses.
const (
	ComplaintNew       = "new"
	ComplaintConfirmed = "confirmed"
	ComplaintDismissed = "dismissed"
)

const roomChannelPrefix = "room:"

type Storage interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID string) error
	GetActiveRoomIDs(ctx context.Context) ([]string, error)

	SaveComplaint(ctx context.Context, complaint *models.Complaint) error
	GetComplaintsForTarget(ctx context.Context, targetID string, since time.Time) ([]models.Complaint, error)
	GetComplaintByID(ctx context.Context, id uint) (*models.Complaint, error)
	ListComplaints(ctx context.Context, status string, limit int) ([]models.Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id uint, status string) error

	BanSession(ctx context.Context, sid string, d time.Duration) error
	UnbanSession(ctx context.Context, sid string) error
	IsSessionBanned(ctx context.Context, sid string) (bool, error)

	PublishMessage(ctx context.Context, roomID string, msg models.ChatMessage) error
	SubscribeToAllRooms(ctx context.Context) *redis.PubSub

	ListStreams(ctx context.Context, tag string) ([]models.StreamInfo, error)
	CountStreams(ctx context.Context) (int64, error)
	SaveStream(ctx context.Context, stream *models.StreamInfo) error
}

// Service is the Postgres + Redis implementation of Storage.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// SaveRoom зберігає кімнату в PostgreSQL
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom закриває кімнату, встановлюючи IsActive = false та EndedAt = time.Now()
func (s *Service) CloseRoom(ctx context.Context, roomID string) error {
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  gorm.Expr("NOW()"),
		}).Error
}

// GetActiveRoomIDs повертає список усіх RoomID, які є активними в даний момент.
func (s *Service) GetActiveRoomIDs(ctx context.Context) ([]string, error) {
	var roomIDs []string
	if err := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("is_active = ?", true).
		Pluck("room_id", &roomIDs).Error; err != nil {
		log.Printf("ERROR: Failed to retrieve active RoomIDs: %v", err)
		return nil, err
	}
	return roomIDs, nil
}

func (s *Service) SaveComplaint(ctx context.Context, complaint *models.Complaint) error {
	if complaint.Status == "" {
		complaint.Status = ComplaintNew
	}
	if err := s.DB.WithContext(ctx).Create(complaint).Error; err != nil {
		log.Printf("ERROR: Failed to save complaint for room %s: %v", complaint.RoomID, err)
		return err
	}
	return nil
}

// GetComplaintsForTarget returns complaints against targetID filed after
// since, excluding dismissed ones.
func (s *Service) GetComplaintsForTarget(ctx context.Context, targetID string, since time.Time) ([]models.Complaint, error) {
	var complaints []models.Complaint
	err := s.DB.WithContext(ctx).
		Where("target_id = ? AND created_at >= ? AND status <> ?", targetID, since, ComplaintDismissed).
		Order("created_at asc").
		Find(&complaints).Error
	return complaints, err
}

func (s *Service) GetComplaintByID(ctx context.Context, id uint) (*models.Complaint, error) {
	var complaint models.Complaint
	if err := s.DB.WithContext(ctx).First(&complaint, id).Error; err != nil {
		return nil, err
	}
	return &complaint, nil
}

// ListComplaints returns the newest complaints, optionally filtered by status.
func (s *Service) ListComplaints(ctx context.Context, status string, limit int) ([]models.Complaint, error) {
	var complaints []models.Complaint
	q := s.DB.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&complaints).Error
	return complaints, err
}

func (s *Service) UpdateComplaintStatus(ctx context.Context, id uint, status string) error {
	res := s.DB.WithContext(ctx).Model(&models.Complaint{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func banKey(sid string) string { return "ban:" + sid }

// BanSession blocks sid from matching for d.
func (s *Service) BanSession(ctx context.Context, sid string, d time.Duration) error {
	return s.Redis.Set(ctx, banKey(sid), time.Now().Add(d).Format(time.RFC3339), d).Err()
}

func (s *Service) UnbanSession(ctx context.Context, sid string) error {
	return s.Redis.Del(ctx, banKey(sid)).Err()
}

// IsSessionBanned перевіряє статус бану в Redis
func (s *Service) IsSessionBanned(ctx context.Context, sid string) (bool, error) {
	status, err := s.Redis.Get(ctx, banKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// PublishMessage публікує повідомлення в Redis Pub/Sub
func (s *Service) PublishMessage(ctx context.Context, roomID string, msg models.ChatMessage) error {
	payload, err := json.Marshal(models.RelayEnvelope{SenderID: msg.SenderID, Message: msg})
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, roomChannelPrefix+roomID, payload).Err()
}

func (s *Service) SubscribeToAllRooms(ctx context.Context) *redis.PubSub {
	return s.Redis.PSubscribe(ctx, roomChannelPrefix+"*")
}

// ListStreams returns catalog entries by descending viewer count. An empty
// tag returns everything.
func (s *Service) ListStreams(ctx context.Context, tag string) ([]models.StreamInfo, error) {
	var streams []models.StreamInfo
	q := s.DB.WithContext(ctx).Order("viewer_count desc")
	if tag != "" {
		q = q.Where("tag = ?", tag)
	}
	if err := q.Find(&streams).Error; err != nil {
		log.Printf("ERROR: Failed to list streams: %v", err)
		return nil, err
	}
	return streams, nil
}

func (s *Service) CountStreams(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.StreamInfo{}).Count(&n).Error
	return n, err
}

func (s *Service) SaveStream(ctx context.Context, stream *models.StreamInfo) error {
	return s.DB.WithContext(ctx).Save(stream).Error
}
