// Package complaint provides the core logic for handling reports against
// chat partners, including applying temporary bans.
package complaint

import (
	"context"
	"log"
	"time"

	"liveflow/backend/internal/analysis"
	"liveflow/backend/internal/config"
	"liveflow/backend/internal/models"
)

// SimulatedTarget marks reports against a simulated partner. They are
// recorded but never lead to a ban.
const SimulatedTarget = "simulated"

// Store is the storage the service needs.
type Store interface {
	SaveComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaintsForTarget(ctx context.Context, targetID string, since time.Time) ([]models.Complaint, error)
	BanSession(ctx context.Context, sid string, d time.Duration) error
}

// Service handles the business logic for complaints.
type Service struct {
	Storage Store
	Now     func() time.Time
}

// NewService creates a new complaint service.
func NewService(s Store) *Service {
	return &Service{Storage: s, Now: time.Now}
}

// File records a complaint and bans the target when the complaints against
// it within the window add up to the threshold.
func (s *Service) File(ctx context.Context, c *models.Complaint) error {
	c.Reason = analysis.NormalizeReason(c.Reason)
	c.Weight = analysis.GetWeight(c.Reason)
	if err := s.Storage.SaveComplaint(ctx, c); err != nil {
		return err
	}
	log.Printf("INFO: complaint %d filed by %s against %s (%s)", c.ID, c.ReporterID, c.TargetID, c.Reason)

	if c.TargetID == "" || c.TargetID == SimulatedTarget {
		return nil
	}
	return s.CheckForBan(ctx, c.TargetID)
}

// CheckForBan bans sid for config.BanDuration when its recent complaints
// weigh at least config.ComplaintBanThreshold. Reasons are weighed with the
// current table, not the weight stored at filing time.
func (s *Service) CheckForBan(ctx context.Context, sid string) error {
	complaints, err := s.Storage.GetComplaintsForTarget(ctx, sid, s.Now().Add(-config.ComplaintWindow))
	if err != nil {
		return err
	}

	reasons := make([]string, 0, len(complaints))
	for _, c := range complaints {
		reasons = append(reasons, c.Reason)
	}
	total := analysis.TotalWeight(reasons)
	if total < config.ComplaintBanThreshold {
		return nil
	}

	log.Printf("WARNING: banning session %s for %s (complaint weight %d)", sid, config.BanDuration, total)
	return s.Storage.BanSession(ctx, sid, config.BanDuration)
}
