package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/validation"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// recordingNotifier captures emitted events for assertions.
type recordingNotifier struct {
	created  []uint
	resolved []uint
	rejected []uint
}

func (n *recordingNotifier) TaskCreated(t *domain.Task, _ *domain.Citizen)  { n.created = append(n.created, t.ID) }
func (n *recordingNotifier) TaskResolved(t *domain.Task, _ *domain.Citizen) { n.resolved = append(n.resolved, t.ID) }
func (n *recordingNotifier) TaskRejected(t *domain.Task, _ *domain.Citizen) { n.rejected = append(n.rejected, t.ID) }

// seedCitizen inserts a citizen; attach* options add documents.
func seedCitizen(t *testing.T, db *gorm.DB, email string) *domain.Citizen {
	t.Helper()
	c := &domain.Citizen{
		Email:   email,
		Name:    "Olena",
		Surname: "Shevchenko",
		Sex:     "F",
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed citizen: %v", err)
	}
	return c
}

func attachInternal(t *testing.T, db *gorm.DB, c *domain.Citizen) *domain.Passport {
	t.Helper()
	p := &domain.Passport{
		Number:       domain.NewDocumentNumber(),
		Authority:    6666,
		DateOfIssue:  time.Now().UTC(),
		DateOfExpiry: time.Now().UTC().AddDate(10, 0, 1),
		PhotoPath:    "photos/internal.jpg",
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed passport: %v", err)
	}
	if err := repo.AttachPassport(context.Background(), db, c.ID, p.Number); err != nil {
		t.Fatalf("attach passport: %v", err)
	}
	c.PassportNumber = &p.Number
	c.Passport = p
	return p
}

func attachForeign(t *testing.T, db *gorm.DB, c *domain.Citizen) *domain.ForeignPassport {
	t.Helper()
	p := &domain.ForeignPassport{
		Number:       domain.NewDocumentNumber(),
		Authority:    6666,
		DateOfIssue:  time.Now().UTC(),
		DateOfExpiry: time.Now().UTC().AddDate(10, 0, 1),
		PhotoPath:    "photos/foreign.jpg",
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed foreign passport: %v", err)
	}
	if err := repo.AttachForeignPassport(context.Background(), db, c.ID, p.Number); err != nil {
		t.Fatalf("attach foreign passport: %v", err)
	}
	c.ForeignPassportNumber = &p.Number
	c.ForeignPassport = p
	return p
}

func docPayload() domain.Payload {
	return domain.Payload{Document: &domain.DocumentPayload{PhotoPath: "photos/new.jpg"}}
}

func TestSubmit_CreatesPendingAndNotifies(t *testing.T) {
	db := newTestDB(t)
	n := &recordingNotifier{}
	svc := NewTaskService(db, n)
	c := seedCitizen(t, db, "submit@example.com")

	task, err := svc.Submit(context.Background(), c, domain.KindCreateInternalPassport, docPayload())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.Status != domain.StatusPending || task.Kind != domain.KindCreateInternalPassport {
		t.Fatalf("unexpected task: %+v", task)
	}
	if len(n.created) != 1 || n.created[0] != task.ID {
		t.Fatalf("created event not emitted: %v", n.created)
	}
}

func TestSubmit_Preconditions(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db, nil)
	ctx := context.Background()

	holder := seedCitizen(t, db, "holder@example.com")
	attachInternal(t, db, holder)
	_, err := svc.Submit(ctx, holder, domain.KindCreateInternalPassport, docPayload())
	ce, ok := AsConflict(err)
	if !ok || ce.Detail != "You already have an internal passport." {
		t.Fatalf("expected passport conflict, got %v", err)
	}

	fresh := seedCitizen(t, db, "fresh@example.com")
	_, err = svc.Submit(ctx, fresh, domain.KindCreateForeignPassport, docPayload())
	ce, ok = AsConflict(err)
	if !ok || ce.Detail != "You must have an internal passport to create a foreign passport." {
		t.Fatalf("expected prerequisite conflict, got %v", err)
	}

	_, err = svc.Submit(ctx, fresh, domain.KindRestoreInternalPassportLoss, docPayload())
	if _, ok := AsConflict(err); !ok {
		t.Fatalf("restore without document must conflict, got %v", err)
	}

	_, err = svc.Submit(ctx, fresh, domain.KindCreateVisa, domain.Payload{
		VisaCreate: &domain.VisaCreatePayload{PhotoPath: "p", Type: domain.VisaTypeTourist, Country: "DE", EntryAmount: domain.EntrySingle},
	})
	if _, ok := AsConflict(err); !ok {
		t.Fatalf("visa without foreign passport must conflict, got %v", err)
	}
}

func TestSubmit_PayloadVariantMismatch(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db, nil)
	c := seedCitizen(t, db, "variant@example.com")

	_, err := svc.Submit(context.Background(), c, domain.KindCreateInternalPassport, domain.Payload{
		Address: &domain.AddressPayload{AddressID: 1},
	})
	if !errors.Is(err, domain.ErrPayloadVariant) {
		t.Fatalf("expected payload variant error, got %v", err)
	}
}

func TestSubmit_DuplicateGuardLifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db, nil)
	ctx := context.Background()
	c := seedCitizen(t, db, "dup@example.com")

	first, err := svc.Submit(ctx, c, domain.KindCreateInternalPassport, docPayload())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = svc.Submit(ctx, c, domain.KindCreateInternalPassport, docPayload())
	ce, ok := AsConflict(err)
	if !ok || !strings.Contains(ce.Detail, "already sent a request to create an internal passport") {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}

	// A resolved task releases the guard.
	if err := repo.TransitionTask(ctx, db, first.ID, domain.StatusRejected); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := svc.Submit(ctx, c, domain.KindCreateInternalPassport, docPayload()); err != nil {
		t.Fatalf("resubmit after rejection should pass, got %v", err)
	}
}

func TestSubmit_VisaDuplicateKeys(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db, nil)
	ctx := context.Background()
	c := seedCitizen(t, db, "visadup@example.com")
	attachInternal(t, db, c)
	attachForeign(t, db, c)

	visaReq := func(country string) domain.Payload {
		return domain.Payload{VisaCreate: &domain.VisaCreatePayload{
			PhotoPath: "p", Type: domain.VisaTypeTourist, Country: country, EntryAmount: domain.EntrySingle,
		}}
	}

	if _, err := svc.Submit(ctx, c, domain.KindCreateVisa, visaReq("DE")); err != nil {
		t.Fatalf("first visa request: %v", err)
	}
	// Different destination is a different pursuit, allowed in parallel.
	if _, err := svc.Submit(ctx, c, domain.KindCreateVisa, visaReq("FR")); err != nil {
		t.Fatalf("second country should pass: %v", err)
	}
	// Same destination is a duplicate.
	if _, err := svc.Submit(ctx, c, domain.KindCreateVisa, visaReq("DE")); err == nil {
		t.Fatalf("same country must be refused")
	}

	// Extend keys on the target visa id.
	target := func(id uint) domain.Payload {
		return domain.Payload{VisaTarget: &domain.VisaTargetPayload{VisaID: id}}
	}
	if _, err := svc.Submit(ctx, c, domain.KindExtendVisa, target(1)); err != nil {
		t.Fatalf("extend visa 1: %v", err)
	}
	if _, err := svc.Submit(ctx, c, domain.KindExtendVisa, target(2)); err != nil {
		t.Fatalf("extend visa 2 should pass: %v", err)
	}
	if _, err := svc.Submit(ctx, c, domain.KindExtendVisa, target(1)); err == nil {
		t.Fatalf("extending the same visa twice must be refused")
	}
}

func TestList_FilterValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db, nil)
	ctx := context.Background()

	// Unknown numeric status.
	_, _, err := svc.List(ctx, ListOptions{Status: "3"})
	var verrs validation.Errors
	if !errors.As(err, &verrs) || verrs["status"][0] != "Invalid status." {
		t.Fatalf("expected invalid status error, got %v", err)
	}

	// Non-numeric status.
	_, _, err = svc.List(ctx, ListOptions{Status: "1x"})
	if !errors.As(err, &verrs) || verrs["status"][0] != "Invalid status." {
		t.Fatalf("expected invalid status error for trailing garbage, got %v", err)
	}

	// Spaced kind.
	_, _, err = svc.List(ctx, ListOptions{Kind: "create visa"})
	if !errors.As(err, &verrs) || verrs["kind"][0] != "Spaces are not allowed in the kind filter." {
		t.Fatalf("expected spaced kind error, got %v", err)
	}

	// Unknown kind.
	_, _, err = svc.List(ctx, ListOptions{Kind: "unknown-kind"})
	if !errors.As(err, &verrs) || verrs["kind"][0] != "Invalid kind." {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestList_PaginationAndAllMode(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db, nil)
	ctx := context.Background()
	c := seedCitizen(t, db, "list@example.com")

	for i := 0; i < 5; i++ {
		if _, err := repo.CreateTask(ctx, db, c.ID, domain.KindChangeAddress,
			domain.Payload{Address: &domain.AddressPayload{AddressID: uint(i + 1)}}); err != nil {
			t.Fatalf("seed task: %v", err)
		}
	}

	items, total, err := svc.List(ctx, ListOptions{Page: 1, PageSize: 2})
	if err != nil || total != 5 || len(items) != 2 {
		t.Fatalf("page 1: items=%d total=%d err=%v", len(items), total, err)
	}
	items, total, err = svc.List(ctx, ListOptions{Page: 3, PageSize: 2})
	if err != nil || total != 5 || len(items) != 1 {
		t.Fatalf("page 3: items=%d total=%d err=%v", len(items), total, err)
	}

	items, total, err = svc.List(ctx, ListOptions{All: true})
	if err != nil || total != 5 || len(items) != 5 {
		t.Fatalf("all mode: items=%d total=%d err=%v", len(items), total, err)
	}

	// Filtered all mode.
	kind := domain.KindChangeAddress.Slug()
	items, total, err = svc.List(ctx, ListOptions{Kind: kind, All: true})
	if err != nil || total != 5 || len(items) != 5 {
		t.Fatalf("filtered all mode: items=%d total=%d err=%v", len(items), total, err)
	}
}
