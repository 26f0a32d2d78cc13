package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/edda/internal/coordination"
	"github.com/untoldecay/edda/internal/ledger"
)

// Reason records why a candidate was selected for collection.
type Reason string

const (
	ReasonRetention    Reason = "Retention"
	ReasonQuota        Reason = "Quota"
	ReasonPurgeArchive Reason = "PurgeArchive"
)

// Candidate is one blob slated for deletion or archival.
type Candidate struct {
	Hash   string
	Size   int64
	Class  Class
	Reason Reason
}

// Tombstone records a blob's deletion, append-only.
type Tombstone struct {
	BlobHash      string    `json:"blob_hash"`
	Reason        Reason    `json:"reason"`
	ClassAtDelete Class     `json:"class_at_deletion"`
	WasPinned     bool      `json:"was_pinned"`
	SizeBytes     int64     `json:"size_bytes"`
	Ts            time.Time `json:"ts"`
}

// Options configures one GC pass.
type Options struct {
	KeepDays               int // blobs newer than this many days are never collected on Retention grounds
	QuotaMB                int // 0 disables the quota pass
	Archive                bool
	ArchiveKeepDays        int
	PurgeArchive           bool
	IncludeSessions        bool
	Global                 bool
	CoordinationLogPath    string
	StateDir               string
	CoordinationLineLimit  int // default 1000
}

// Plan is the outcome of a dry-run (or the pre-execute plan for a real
// run): what would be removed, and how much space it would reclaim.
type Plan struct {
	Candidates       []Candidate
	TotalBytes       int64
	ReclaimedBytes   int64
	SessionFiles     []string
	CoordinationLine int // >0 means the coordination log qualifies for compaction
}

// BuildPlan runs phases 1-5 (and the session/coordination scan) without
// mutating anything on disk.
func BuildPlan(ctx context.Context, store *ledger.Store, bs *Store, branch string, opts Options) (Plan, error) {
	referenced, err := referencedBlobs(ctx, store, branch)
	if err != nil {
		return Plan{}, err
	}

	disk, err := listDir(bs.activeDir())
	if err != nil {
		return Plan{}, err
	}

	var total int64
	for _, d := range disk {
		total += d.Size
	}

	keepDays := opts.KeepDays
	if keepDays <= 0 {
		keepDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)

	var candidates []Candidate
	for _, d := range disk {
		meta := bs.metaFor(d.Hex)
		hash := "blob:sha256:" + d.Hex
		if meta.Pinned {
			continue
		}
		if meta.Class == ClassArtifact {
			continue
		}
		if referenced[hash] {
			continue
		}
		if d.MTime.After(cutoff) {
			continue
		}
		candidates = append(candidates, Candidate{Hash: hash, Size: d.Size, Class: meta.Class, Reason: ReasonRetention})
	}

	sortByPriority(candidates)

	var kept int64
	for _, c := range candidates {
		kept += c.Size
	}

	if opts.QuotaMB > 0 {
		quotaBytes := int64(opts.QuotaMB) * 1024 * 1024
		if total-kept > quotaBytes {
			candidates = extendForQuota(candidates, disk, bs, referenced, total-kept-quotaBytes)
		}
	}

	var reclaimed int64
	for _, c := range candidates {
		reclaimed += c.Size
	}

	plan := Plan{Candidates: candidates, TotalBytes: total, ReclaimedBytes: reclaimed}

	if opts.IncludeSessions {
		plan.SessionFiles = expiredSessionFiles(opts.StateDir, opts.Global)
	}

	if opts.IncludeSessions && opts.Global && opts.CoordinationLogPath != "" {
		limit := opts.CoordinationLineLimit
		if limit <= 0 {
			limit = 1000
		}
		l := coordination.Open(opts.CoordinationLogPath)
		if n, err := l.LineCount(); err == nil && n > limit {
			plan.CoordinationLine = n
		}
	}

	return plan, nil
}

// Execute applies a previously built plan: deletes (or archives)
// candidates, appends tombstones, removes expired session files, and
// compacts the coordination log if the plan flagged it.
func Execute(plan Plan, bs *Store, opts Options) ([]Tombstone, error) {
	var tombstones []Tombstone

	for _, c := range plan.Candidates {
		hex := hexOf(c.Hash)
		src := filepath.Join(bs.activeDir(), hex)

		if opts.Archive {
			dst := filepath.Join(bs.archiveDir(), hex)
			if err := copyFile(src, dst); err != nil {
				return tombstones, fmt.Errorf("blobstore: archive %s: %w", c.Hash, err)
			}
			if err := os.Remove(src); err != nil {
				return tombstones, fmt.Errorf("blobstore: remove archived %s: %w", c.Hash, err)
			}
			continue
		}

		meta := bs.metaFor(hex)
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return tombstones, fmt.Errorf("blobstore: remove %s: %w", c.Hash, err)
		}
		tombstones = append(tombstones, Tombstone{
			BlobHash: c.Hash, Reason: c.Reason, ClassAtDelete: meta.Class,
			WasPinned: meta.Pinned, SizeBytes: c.Size, Ts: time.Now().UTC(),
		})
		delete(bs.meta, hex)
	}
	if len(plan.Candidates) > 0 {
		if err := bs.saveMeta(); err != nil {
			return tombstones, err
		}
	}

	for _, f := range plan.SessionFiles {
		_ = os.Remove(f)
	}

	if plan.CoordinationLine > 0 && opts.CoordinationLogPath != "" {
		l := coordination.Open(opts.CoordinationLogPath)
		if err := l.Compact(); err != nil {
			return tombstones, fmt.Errorf("blobstore: compact coordination log: %w", err)
		}
	}

	if len(tombstones) > 0 && opts.StateDir != "" {
		if err := appendTombstones(opts.StateDir, tombstones); err != nil {
			return tombstones, err
		}
	}

	return tombstones, nil
}

// PurgeArchive deletes archived blobs past archive_keep_days, producing
// PurgeArchive tombstones.
func PurgeArchive(bs *Store, opts Options) ([]Tombstone, error) {
	keepDays := opts.ArchiveKeepDays
	if keepDays <= 0 {
		keepDays = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)

	disk, err := listDir(bs.archiveDir())
	if err != nil {
		return nil, err
	}

	var tombstones []Tombstone
	for _, d := range disk {
		if d.MTime.After(cutoff) {
			continue
		}
		meta := bs.metaFor(d.Hex)
		path := filepath.Join(bs.archiveDir(), d.Hex)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return tombstones, fmt.Errorf("blobstore: purge archived %s: %w", d.Hex, err)
		}
		tombstones = append(tombstones, Tombstone{
			BlobHash: "blob:sha256:" + d.Hex, Reason: ReasonPurgeArchive, ClassAtDelete: meta.Class,
			WasPinned: meta.Pinned, SizeBytes: d.Size, Ts: time.Now().UTC(),
		})
	}

	if len(tombstones) > 0 && opts.StateDir != "" {
		if err := appendTombstones(opts.StateDir, tombstones); err != nil {
			return tombstones, err
		}
	}
	return tombstones, nil
}

func referencedBlobs(ctx context.Context, store *ledger.Store, branch string) (map[string]bool, error) {
	events, err := store.IterEvents(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("blobstore: scan event refs: %w", err)
	}
	referenced := map[string]bool{}
	for _, e := range events {
		for _, b := range e.Refs.Blobs {
			referenced[b] = true
		}
	}
	return referenced, nil
}

// sortByPriority orders candidates trace_noise before decision_evidence
// (lower GC priority value collects first).
func sortByPriority(candidates []Candidate) {
	priority := func(c Class) int {
		switch c {
		case ClassNoise:
			return 0
		case ClassEvidence:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return priority(candidates[i].Class) < priority(candidates[j].Class)
	})
}

// extendForQuota walks remaining unpinned non-artifact blobs (those not
// already selected) in priority order, adding Quota-reason candidates
// until overage bytes are covered.
func extendForQuota(selected []Candidate, disk []diskBlob, bs *Store, referenced map[string]bool, overage int64) []Candidate {
	already := map[string]bool{}
	for _, c := range selected {
		already[hexOf(c.Hash)] = true
	}

	var remaining []Candidate
	for _, d := range disk {
		if already[d.Hex] {
			continue
		}
		meta := bs.metaFor(d.Hex)
		if meta.Pinned || meta.Class == ClassArtifact {
			continue
		}
		hash := "blob:sha256:" + d.Hex
		_ = referenced // referenced blobs are still eligible under quota pressure, by design
		remaining = append(remaining, Candidate{Hash: hash, Size: d.Size, Class: meta.Class, Reason: ReasonQuota})
	}
	sortByPriority(remaining)

	var covered int64
	for _, c := range remaining {
		if covered >= overage {
			break
		}
		selected = append(selected, c)
		covered += c.Size
	}
	return selected
}

// sessionFilePatterns are the per-session state file prefixes GC reclaims
// once stale.
var sessionFilePatterns = []string{"inject_hash.", "transcript_cursor.", "progress_last.", "ingest.", "session."}

func expiredSessionFiles(stateDir string, global bool) []string {
	if stateDir == "" {
		return nil
	}
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return nil
	}

	cutoff := time.Now().UTC().Add(-StaleSessionFileAge)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		matched := false
		for _, p := range sessionFilePatterns {
			if strings.HasPrefix(name, p) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		out = append(out, filepath.Join(stateDir, name))
	}
	return out
}

// StaleSessionFileAge is how old a per-session state file must be before
// GC considers it expired. The cutoff is fixed; --global does not change it.
const StaleSessionFileAge = 14 * 24 * time.Hour

func tombstonePath(stateDir string) string {
	return filepath.Join(stateDir, "tombstones.jsonl")
}

func appendTombstones(stateDir string, tombstones []Tombstone) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("blobstore: mkdir state dir: %w", err)
	}
	f, err := os.OpenFile(tombstonePath(stateDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("blobstore: open tombstone log: %w", err)
	}
	defer f.Close()

	for _, t := range tombstones {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("blobstore: marshal tombstone: %w", err)
		}
		if _, err := f.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("blobstore: write tombstone: %w", err)
		}
	}
	return nil
}
