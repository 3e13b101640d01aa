// Package service orchestrates document transitions: it loads snapshots,
// applies the state machine, persists the result and announces it on the
// change feed.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/controlnumber"
	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/internal/document/repository"
	"github.com/doctrack/doctrack/internal/document/routing"
	"github.com/doctrack/doctrack/internal/feed"
	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/summary"
	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/google/uuid"
)

// Options wires the collaborators. Repo is required; everything else has a
// usable default.
type Options struct {
	Repo      repository.Repository
	Allocator *controlnumber.Allocator
	Machine   *document.Machine
	Analyzer  summary.Analyzer
	Resolver  routing.DepartmentResolver
	Publisher feed.Publisher
	Archive   storage.ArchiveStore
	Now       func() time.Time
}

type Service struct {
	repo      repository.Repository
	alloc     *controlnumber.Allocator
	machine   *document.Machine
	analyzer  summary.Analyzer
	resolver  routing.DepartmentResolver
	publisher feed.Publisher
	archive   storage.ArchiveStore
	now       func() time.Time
}

func New(o Options) *Service {
	s := &Service{
		repo:      o.Repo,
		alloc:     o.Allocator,
		machine:   o.Machine,
		analyzer:  o.Analyzer,
		resolver:  o.Resolver,
		publisher: o.Publisher,
		archive:   o.Archive,
		now:       o.Now,
	}
	if s.alloc == nil {
		s.alloc = controlnumber.NewAllocator(controlnumber.NewScanSequencer(o.Repo))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.machine == nil {
		s.machine = document.NewMachineWith(s.now, uuid.NewString)
	}
	if s.analyzer == nil {
		s.analyzer = summary.WithFallback(nil, 0)
	}
	if s.resolver == nil {
		s.resolver = routing.ResolverFunc(func(string) (string, bool) { return "", false })
	}
	if s.publisher == nil {
		s.publisher = feed.Discard{}
	}
	return s
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", document.ErrCollaboratorUnavailable, op, err)
}

func formatFor(actor models.Principal) controlnumber.Format {
	if actor.IsDispatch() {
		return controlnumber.Dispatch
	}
	return controlnumber.Standard
}

// Create validates the intent, allocates a reference number, asks the
// summarizer for an advisory summary and stores the new document.
func (s *Service) Create(ctx context.Context, actor models.Principal, in document.CreateInput) (*document.Document, error) {
	if r := document.CanCreate(in, actor); !r.Allowed {
		metrics.Transitions.WithLabelValues("create", "rejected").Inc()
		return nil, &document.TransitionError{Action: "create", Reason: r.Reason}
	}
	ref, err := s.alloc.Allocate(ctx, formatFor(actor), actor.Department, s.now())
	if err != nil {
		return nil, unavailable("allocate reference", err)
	}

	var sum summary.Result
	if res, err := s.analyzer.Analyze(ctx, in.Title, in.Description); err != nil {
		logger.Warnf("summary for %q failed: %v", ref, err)
	} else {
		sum = res
	}
	if in.Classification == "" && sum.Classification.Valid() {
		in.Classification = sum.Classification
	}

	d, entries, err := s.machine.Create(in, actor, ref)
	if err != nil {
		metrics.Transitions.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}
	d.Summary = sum.Summary
	if err := s.repo.Insert(ctx, d); err != nil {
		metrics.Transitions.WithLabelValues("create", "failed").Inc()
		return nil, unavailable("insert document", err)
	}
	metrics.Transitions.WithLabelValues("create", "applied").Inc()
	logger.WithFields(logger.Fields{"doc": d.ID, "ref": ref, "by": actor.Department, "to": d.AssignedTo}).Info("document created")
	s.announce(ctx, feed.EventInsert, d, entries)
	return d, nil
}

// load fetches a document the actor may see.
func (s *Service) load(ctx context.Context, actor models.Principal, id string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, document.ErrNotFound
		}
		return nil, unavailable("get document", err)
	}
	if d.IsCheckpoint() {
		return nil, document.ErrNotFound
	}
	if !routing.Visible(d, actor) {
		return nil, document.ErrForbidden
	}
	return d, nil
}

// Get returns one document visible to viewer.
func (s *Service) Get(ctx context.Context, viewer models.Principal, id string) (*document.Document, error) {
	return s.load(ctx, viewer, id)
}

// List returns the documents of view for viewer, sorted for display.
func (s *Service) List(ctx context.Context, viewer models.Principal, view routing.View) ([]*document.Document, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, unavailable("list documents", err)
	}
	return routing.Filter(docs, viewer, view, s.resolver), nil
}

type transition func(d *document.Document) (*document.Document, []audit.Entry, error)

func (s *Service) apply(ctx context.Context, action string, actor models.Principal, id string, fn transition) (*document.Document, error) {
	d, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, entries, err := fn(d)
	if err != nil {
		metrics.Transitions.WithLabelValues(action, "rejected").Inc()
		logger.Debugf("%s %s rejected: %v", action, id, err)
		return nil, err
	}
	if err := s.repo.Update(ctx, next); err != nil {
		metrics.Transitions.WithLabelValues(action, "failed").Inc()
		return nil, unavailable("update document", err)
	}
	for _, e := range entries {
		if err := s.repo.InsertLogEntry(ctx, e); err != nil {
			metrics.Transitions.WithLabelValues(action, "failed").Inc()
			return nil, unavailable("insert log entry", err)
		}
	}
	metrics.Transitions.WithLabelValues(action, "applied").Inc()
	logger.WithFields(logger.Fields{
		"doc": id, "action": action, "status": next.Status, "by": actor.Department,
	}).Info("document transition")
	s.announce(ctx, feed.EventUpdate, next, entries)
	return next, nil
}

// announce publishes the snapshot and its new entries. Publish failures are
// logged only; subscribers reconcile from later snapshots.
func (s *Service) announce(ctx context.Context, t feed.EventType, d *document.Document, entries []audit.Entry) {
	ev, err := feed.DocumentEvent(t, d)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	for _, e := range entries {
		if err != nil {
			break
		}
		var lev feed.Event
		if lev, err = feed.EntryEvent(e); err == nil {
			err = s.publisher.Publish(ctx, lev)
		}
	}
	if err != nil {
		logger.Warnf("publish change for %s: %v", d.ID, err)
	}
}

func (s *Service) Receive(ctx context.Context, actor models.Principal, id string) (*document.Document, error) {
	return s.apply(ctx, "receive", actor, id, func(d *document.Document) (*document.Document, []audit.Entry, error) {
		return s.machine.Receive(d, actor)
	})
}

func (s *Service) Forward(ctx context.Context, actor models.Principal, id, destination, remarks string) (*document.Document, error) {
	return s.apply(ctx, "forward", actor, id, func(d *document.Document) (*document.Document, []audit.Entry, error) {
		return s.machine.Forward(d, actor, destination, remarks)
	})
}

// Return sends the document back to its creator's current department.
func (s *Service) Return(ctx context.Context, actor models.Principal, id, reason string) (*document.Document, error) {
	return s.apply(ctx, "return", actor, id, func(d *document.Document) (*document.Document, []audit.Entry, error) {
		dept, _ := s.resolver.DepartmentOf(d.CreatedBy)
		return s.machine.Return(d, actor, dept, reason)
	})
}

func (s *Service) Complete(ctx context.Context, actor models.Principal, id, remarks string) (*document.Document, error) {
	return s.apply(ctx, "complete", actor, id, func(d *document.Document) (*document.Document, []audit.Entry, error) {
		return s.machine.MarkDone(d, actor, remarks)
	})
}

// Archive closes a completed document and, when an archive store is
// configured, exports the final snapshot. Export failures never undo the
// transition.
func (s *Service) Archive(ctx context.Context, actor models.Principal, id string) (*document.Document, error) {
	d, err := s.apply(ctx, "archive", actor, id, func(d *document.Document) (*document.Document, []audit.Entry, error) {
		dept, _ := s.resolver.DepartmentOf(d.CreatedBy)
		return s.machine.Archive(d, actor, dept)
	})
	if err != nil || s.archive == nil {
		return d, err
	}
	if key, xerr := s.archive.PutArchive(ctx, d); xerr != nil {
		logger.Errorf("archive export %s: %v", d.ID, xerr)
	} else {
		logger.Debugf("archive export %s -> %s", d.ID, key)
	}
	return d, nil
}

func (s *Service) UpdateRemarks(ctx context.Context, actor models.Principal, id, remarks string) (*document.Document, error) {
	return s.apply(ctx, "remarks", actor, id, func(d *document.Document) (*document.Document, []audit.Entry, error) {
		return s.machine.UpdateRemarks(d, actor, remarks)
	})
}

// NextNumber previews the reference number actor's next document would
// get. Nothing is reserved.
func (s *Service) NextNumber(ctx context.Context, actor models.Principal) (string, error) {
	ref, err := controlnumber.Preview(ctx, s.repo, formatFor(actor), actor.Department, s.now())
	if err != nil {
		return "", unavailable("scan references", err)
	}
	return ref, nil
}

// Collisions reports reference numbers shared by more than one document.
func (s *Service) Collisions(ctx context.Context, actor models.Principal) ([]controlnumber.Collision, error) {
	if !actor.IsAdmin() {
		return nil, document.ErrForbidden
	}
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, unavailable("list documents", err)
	}
	refs := make(map[string]string, len(docs))
	for _, d := range docs {
		refs[d.ID] = d.ReferenceNumber
	}
	out := controlnumber.FindCollisions(refs)
	if len(out) > 0 {
		metrics.CollisionsDetected.Add(float64(len(out)))
		logger.Warnf("found %d duplicated reference numbers", len(out))
	}
	return out, nil
}

// PurgeResult summarizes a bulk purge.
type PurgeResult struct {
	Deleted     int      `json:"deleted"`
	Checkpoints []string `json:"checkpoints"`
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// seriesPrefix strips the numeric series from a reference number:
// "IT 2501007" -> "IT 2501", "RICTMD-25-12-003" -> "RICTMD-25-12-".
func seriesPrefix(ref string) string {
	if i := strings.LastIndex(ref, "-"); i >= 0 && allDigits(ref[i+1:]) {
		return ref[:i+1]
	}
	if i := strings.LastIndex(ref, " "); i >= 0 && len(ref)-i-1 > 4 && allDigits(ref[i+1:]) {
		return ref[:i+5]
	}
	return strings.TrimRightFunc(ref, func(r rune) bool { return r >= '0' && r <= '9' })
}

type purgePlan struct {
	victims     []*document.Document
	checkpoints []string
}

// planPurge picks the documents created before cutoff and, per reference
// prefix, the checkpoint needed when none of the survivors holds the
// prefix's highest number.
func (s *Service) planPurge(ctx context.Context, cutoff time.Time) (purgePlan, error) {
	var plan purgePlan
	docs, err := s.repo.List(ctx)
	if err != nil {
		return plan, unavailable("list documents", err)
	}
	purged, kept := map[string]int{}, map[string]int{}
	for _, d := range docs {
		prefix := seriesPrefix(d.ReferenceNumber)
		n, ok := controlnumber.Series(prefix, d.ReferenceNumber)
		if !d.IsCheckpoint() && d.CreatedAt.Before(cutoff) {
			plan.victims = append(plan.victims, d)
			if ok && n > purged[prefix] {
				purged[prefix] = n
			}
			continue
		}
		if ok && n > kept[prefix] {
			kept[prefix] = n
		}
	}
	for prefix, n := range purged {
		if kept[prefix] < n {
			plan.checkpoints = append(plan.checkpoints, controlnumber.Compose(prefix, n))
		}
	}
	sort.Strings(plan.checkpoints)
	return plan, nil
}

// PurgePreview reports what Purge would delete and which checkpoints it
// would write, without changing anything.
func (s *Service) PurgePreview(ctx context.Context, actor models.Principal, cutoff time.Time) (PurgeResult, error) {
	if !actor.IsAdmin() {
		return PurgeResult{}, document.ErrForbidden
	}
	plan, err := s.planPurge(ctx, cutoff)
	if err != nil {
		return PurgeResult{}, err
	}
	return PurgeResult{Deleted: len(plan.victims), Checkpoints: plan.checkpoints}, nil
}

// Purge deletes every non-checkpoint document created before cutoff. For
// each reference prefix that loses its highest number a checkpoint is
// stored first, so allocation continues the series even when the purge
// fails halfway.
func (s *Service) Purge(ctx context.Context, actor models.Principal, cutoff time.Time) (PurgeResult, error) {
	var res PurgeResult
	if !actor.IsAdmin() {
		return res, document.ErrForbidden
	}
	plan, err := s.planPurge(ctx, cutoff)
	if err != nil {
		return res, err
	}

	now := s.now().UTC()
	for _, ref := range plan.checkpoints {
		cp := &document.Document{
			ID:              uuid.NewString(),
			ReferenceNumber: ref,
			Title:           document.CheckpointTitle,
			Status:          document.StatusArchived,
			CreatedBy:       actor.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Insert(ctx, cp); err != nil {
			return res, unavailable("insert checkpoint", err)
		}
		res.Checkpoints = append(res.Checkpoints, ref)
	}

	for _, d := range plan.victims {
		if err := s.repo.Delete(ctx, d.ID); err != nil && !errors.Is(err, document.ErrNotFound) {
			return res, unavailable("delete document", err)
		}
		res.Deleted++
		s.announce(ctx, feed.EventDelete, d, nil)
	}
	logger.WithFields(logger.Fields{"deleted": res.Deleted, "checkpoints": len(res.Checkpoints), "cutoff": cutoff}).Info("purge finished")
	return res, nil
}
