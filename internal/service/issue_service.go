package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/apex/log"
	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"

	"civicreport/internal/blob"
	"civicreport/internal/cache"
	apperrors "civicreport/internal/errors"
	"civicreport/internal/events"
	"civicreport/internal/metrics"
	"civicreport/internal/model"
	"civicreport/internal/repository"
)

const (
	maxDescriptionRunes = 1000
	issueCreateWindow   = 24 * time.Hour
	publishTimeout      = 5 * time.Second
)

// CreateIssueInput carries an unvalidated report as received from a client.
type CreateIssueInput struct {
	UserID      uint
	Type        string
	Description string
	Latitude    string
	Longitude   string
	ImageName   string
	ImageSize   int64
	Image       io.Reader
}

// IssueService is the registry of reported issues.
type IssueService interface {
	Create(ctx context.Context, in CreateIssueInput) (*model.Issue, error)
	List(ctx context.Context) ([]model.Issue, error)
	ListGeoJSON(ctx context.Context) (*geojson.FeatureCollection, error)
	Resolve(ctx context.Context, issueID, requesterID uint) error
}

type issueService struct {
	repo        repository.IssueRepository
	store       blob.Store
	publisher   events.Publisher
	limiter     cache.Limiter
	createLimit int
	now         func() time.Time
}

// NewIssueService creates a new issue service.
func NewIssueService(
	repo repository.IssueRepository,
	store blob.Store,
	publisher events.Publisher,
	limiter cache.Limiter,
	createLimit int,
) IssueService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &issueService{
		repo:        repo,
		store:       store,
		publisher:   publisher,
		limiter:     limiter,
		createLimit: createLimit,
		now:         time.Now,
	}
}

type validIssue struct {
	issueType   model.IssueType
	description *string
	lat, lng    float64
	ext         string
}

// Create validates the report, stores the image, then inserts the row.
// A failed insert leaves the image orphaned.
func (s *issueService) Create(ctx context.Context, in CreateIssueInput) (*model.Issue, error) {
	v, err := validateIssue(in)
	if err != nil {
		return nil, err
	}

	if !s.limiter.Allow(ctx, fmt.Sprintf("issue:create:%d", in.UserID), s.createLimit, issueCreateWindow) {
		return nil, apperrors.ErrRateLimited
	}

	now := s.now().UTC()
	name := blob.NewName(now, in.ImageName)
	ref, err := s.store.Put(ctx, name, in.Image, in.ImageSize, blob.ContentType(v.ext))
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	issue := &model.Issue{
		Type:        v.issueType,
		Description: v.description,
		ImagePath:   ref,
		Latitude:    v.lat,
		Longitude:   v.lng,
		Status:      model.IssueStatusOpen,
		UserID:      in.UserID,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, issue); err != nil {
		metrics.OrphanedBlobsTotal.Inc()
		log.WithError(err).WithFields(log.Fields{
			"image_path": ref,
			"user_id":    in.UserID,
		}).Error("issue insert failed, image orphaned")
		return nil, fmt.Errorf("insert issue: %w", err)
	}

	metrics.IssuesCreatedTotal.WithLabelValues(string(issue.Type)).Inc()
	log.WithFields(log.Fields{
		"issue_id": issue.ID,
		"user_id":  issue.UserID,
		"type":     issue.Type,
	}).Info("issue reported")

	s.publish(ctx, events.NewIssueCreated(issue))
	return issue, nil
}

func (s *issueService) List(ctx context.Context) ([]model.Issue, error) {
	issues, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

// ListGeoJSON returns every issue as a Point feature in list order.
func (s *issueService) ListGeoJSON(ctx context.Context) (*geojson.FeatureCollection, error) {
	issues, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for i := range issues {
		issue := &issues[i]
		f := geojson.NewPointFeature([]float64{issue.Longitude, issue.Latitude})
		f.ID = issue.ID
		f.SetProperty("id", issue.ID)
		f.SetProperty("type", issue.Type)
		f.SetProperty("description", issue.Description)
		f.SetProperty("image_path", issue.ImagePath)
		f.SetProperty("status", issue.Status)
		f.SetProperty("user_id", issue.UserID)
		f.SetProperty("created_at", issue.CreatedAt)
		if issue.ResolvedAt != nil {
			f.SetProperty("resolved_at", issue.ResolvedAt)
		}
		fc.AddFeature(f)
	}
	return fc, nil
}

// Resolve marks an open issue resolved. Resolving an already resolved issue
// is a no-op; a missing issue and someone else's issue both yield ErrForbidden.
func (s *issueService) Resolve(ctx context.Context, issueID, requesterID uint) error {
	now := s.now().UTC()
	n, err := s.repo.MarkResolved(ctx, issueID, requesterID, now)
	if err != nil {
		return fmt.Errorf("resolve issue %d: %w", issueID, err)
	}
	if n > 0 {
		metrics.IssueResolutionsTotal.WithLabelValues("resolved").Inc()
		log.WithFields(log.Fields{"issue_id": issueID, "user_id": requesterID}).Info("issue resolved")
		s.publish(ctx, events.NewIssueResolved(issueID, requesterID, now))
		return nil
	}

	owned, err := s.repo.CountOwned(ctx, issueID, requesterID)
	if err != nil {
		return fmt.Errorf("check issue %d owner: %w", issueID, err)
	}
	if owned == 0 {
		metrics.IssueResolutionsTotal.WithLabelValues("forbidden").Inc()
		return apperrors.ErrForbidden
	}
	metrics.IssueResolutionsTotal.WithLabelValues("noop").Inc()
	return nil
}

// publish never fails the caller; the request has already committed.
func (s *issueService) publish(ctx context.Context, ev events.IssueEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"event":    ev.Event,
			"issue_id": ev.IssueID,
		}).Warn("event publish failed")
	}
}

func validateIssue(in CreateIssueInput) (*validIssue, error) {
	issueType := model.IssueType(strings.TrimSpace(in.Type))
	if !issueType.Valid() {
		return nil, apperrors.NewValidationError("issue_type", "must be one of "+issueTypeList())
	}

	lat, err := parseCoordinate(in.Latitude)
	if err != nil {
		return nil, apperrors.NewValidationError("latitude", "must be a number")
	}
	lng, err := parseCoordinate(in.Longitude)
	if err != nil {
		return nil, apperrors.NewValidationError("longitude", "must be a number")
	}
	if !s2.LatLngFromDegrees(lat, lng).IsValid() {
		if math.Abs(lat) > 90 {
			return nil, apperrors.NewValidationError("latitude", "must be between -90 and 90")
		}
		return nil, apperrors.NewValidationError("longitude", "must be between -180 and 180")
	}

	if in.Image == nil || in.ImageSize == 0 {
		return nil, apperrors.NewValidationError("image", "is required")
	}
	ext := blob.Extension(in.ImageName)
	if !blob.AllowedExtension(ext) {
		return nil, apperrors.NewValidationError("image", "must be a png, jpg, jpeg, gif or webp file")
	}

	var description *string
	if d := strings.TrimSpace(in.Description); d != "" {
		if utf8.RuneCountInString(d) > maxDescriptionRunes {
			return nil, apperrors.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionRunes))
		}
		description = &d
	}

	return &validIssue{
		issueType:   issueType,
		description: description,
		lat:         lat,
		lng:         lng,
		ext:         ext,
	}, nil
}

func issueTypeList() string {
	types := model.IssueTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// parseCoordinate accepts decimal notation only. ParseFloat alone would also
// take hex floats and underscores.
func parseCoordinate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if strings.ContainsAny(raw, "xX_") {
		return 0, fmt.Errorf("coordinate %q is not a decimal number", raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("coordinate %q is not finite", raw)
	}
	return v, nil
}
