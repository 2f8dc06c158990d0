package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/app"
	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/slot"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

const (
	physicianCount = 40
	slotDays       = 5
	tokenTTL       = 24 * time.Hour
)

var documentTypes = []struct {
	name        string
	description string
	required    bool
}{
	{"medical_license", "State medical license", true},
	{"board_certification", "Specialty board certificate", true},
	{"malpractice_insurance", "Proof of malpractice coverage", false},
}

// working hours cut into slots every seeded day
var sessions = [][2]time.Duration{
	{9 * time.Hour, 12 * time.Hour},
	{14 * time.Hour, 17 * time.Hour},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().WithError(err).Fatal("config load error")
	}
	log := logger.New(cfg.LogLevel)
	log.WithField("store", cfg.Store).Info("seed starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer stack.Close()

	gofakeit.Seed(time.Now().UnixNano())
	admin := auth.Caller{ID: uuid.New(), Role: auth.RoleAdministrator}

	types, err := seedDocumentTypes(ctx, stack.Gate, admin)
	if err != nil {
		log.WithError(err).Fatal("seed document types")
	}

	approved, err := seedPhysicians(ctx, stack, admin, types, log)
	if err != nil {
		log.WithError(err).Fatal("seed physicians")
	}

	if cfg.JWTSecret != "" {
		printTokens(cfg.JWTSecret, admin, approved)
	}

	log.WithField("approved_physicians", len(approved)).Info("seed complete")
}

func seedDocumentTypes(ctx context.Context, gate *credential.Gate, admin auth.Caller) ([]credential.DocumentType, error) {
	existing, err := gate.ListDocumentTypes(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]credential.DocumentType, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	var out []credential.DocumentType
	for _, dt := range documentTypes {
		if t, ok := byName[dt.name]; ok {
			out = append(out, t)
			continue
		}
		t, err := gate.CreateDocumentType(ctx, admin, dt.name, dt.description, dt.required)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", dt.name, err)
		}
		out = append(out, *t)
	}
	return out, nil
}

// seedPhysicians registers physicians and reviews their documents. Most end
// up approved with a few days of slots; the rest stay pending or rejected.
func seedPhysicians(ctx context.Context, stack *app.Stack, admin auth.Caller, types []credential.DocumentType, log *logger.Logger) ([]auth.Caller, error) {
	var approved []auth.Caller

	for i := 0; i < physicianCount; i++ {
		doctor := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
		if _, err := stack.Gate.RegisterPhysician(ctx, doctor, doctor.ID); err != nil {
			return nil, err
		}

		// 0-6 approve everything, 7-8 leave pending, 9 reject
		outcome := gofakeit.Number(0, 9)
		slug := strings.ToLower(strings.ReplaceAll(gofakeit.Name(), " ", "-"))

		var state credential.State
		for _, t := range types {
			sub, err := stack.Gate.SubmitDocument(ctx, doctor, doctor.ID, t.ID,
				fmt.Sprintf("s3://credentials/%s/%s.pdf", slug, t.Name))
			if err != nil {
				return nil, err
			}
			if outcome >= 7 && outcome <= 8 {
				continue
			}

			review := credential.Review{DocumentID: sub.ID, Decision: credential.DecisionApprove}
			if outcome == 9 && t.Required {
				review = credential.Review{
					DocumentID:      sub.ID,
					Decision:        credential.DecisionReject,
					Notes:           "document illegible",
					RejectPhysician: true,
				}
			}
			res, err := stack.Gate.ReviewDocument(ctx, admin, review)
			if err != nil {
				return nil, err
			}
			state = res.PhysicianState
		}

		if state != credential.StateApproved {
			continue
		}
		if err := seedSlots(ctx, stack.Slots, doctor, stack.Config.ClinicLocation); err != nil {
			return nil, err
		}
		approved = append(approved, doctor)
		log.WithField("physician_id", doctor.ID).Debug("physician seeded")
	}

	return approved, nil
}

func seedSlots(ctx context.Context, reg *slot.Registry, doctor auth.Caller, loc *time.Location) error {
	today := time.Now().In(loc)
	for d := 1; d <= slotDays; d++ {
		day := today.AddDate(0, 0, d)
		for _, s := range sessions {
			_, err := reg.CreateSlots(ctx, doctor, doctor.ID, slot.Range{Date: day, Start: s[0], End: s[1]})
			if err != nil {
				return fmt.Errorf("slots for %s on %s: %w", doctor.ID, day.Format(time.DateOnly), err)
			}
		}
	}
	return nil
}

func printTokens(secret string, admin auth.Caller, physicians []auth.Caller) {
	if tok, err := auth.SignToken(admin, secret, tokenTTL); err == nil {
		fmt.Printf("admin %s %s\n", admin.ID, tok)
	}
	for _, p := range physicians {
		if tok, err := auth.SignToken(p, secret, tokenTTL); err == nil {
			fmt.Printf("physician %s %s\n", p.ID, tok)
		}
	}
}
