package clobber

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/types"
)

const shardCount = 32

// InstalledOrder is the order of packages that were already in the prefix.
// Any package linked by the current transaction outranks them.
const InstalledOrder = -1

const clobberInfix = "__clobber-from-"

// ClobberedPath describes how a contended path was resolved.
type ClobberedPath struct {
	// Package owns the file now at the original path.
	Package string `json:"package"`
	// OtherPackages also shipped the path; their copies were renamed.
	OtherPackages []string `json:"other_packages"`
}

// Rename records that a package's file moved during Resolve. Paths are
// relative to the prefix.
type Rename struct {
	Package  string
	Original string
	From     string
	To       string
}

type contender struct {
	pkg   string
	order int
	// location is where this package's copy is on disk.
	location string
}

type pathState struct {
	contenders []contender
	dirty      bool
}

type shard struct {
	mu    sync.Mutex
	paths map[string]*pathState
}

// Registry is safe for concurrent use.
type Registry struct {
	shards [shardCount]shard
}

// NewRegistry seeds the registry with the files of installed packages.
func NewRegistry(installed []types.PrefixRecord) *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].paths = make(map[string]*pathState)
	}
	for _, record := range installed {
		for _, entry := range entriesOf(record) {
			original, location := entryPaths(entry)
			s := r.shardFor(original)
			state := s.paths[original]
			if state == nil {
				state = &pathState{}
				s.paths[original] = state
			}
			state.contenders = append(state.contenders, contender{
				pkg:      record.Name,
				order:    InstalledOrder,
				location: location,
			})
		}
	}
	return r
}

// ClobberPath returns where pkg stores its copy of a contended path.
func ClobberPath(relPath, pkg string) string {
	return relPath + clobberInfix + pkg
}

func normalize(relPath string) string {
	return filepath.ToSlash(filepath.Clean(relPath))
}

func entriesOf(record types.PrefixRecord) []types.PathsEntry {
	if len(record.PathsData.Paths) > 0 {
		return record.PathsData.Paths
	}
	entries := make([]types.PathsEntry, 0, len(record.Files))
	for _, f := range record.Files {
		entries = append(entries, types.PathsEntry{RelativePath: f})
	}
	return entries
}

func entryPaths(entry types.PathsEntry) (original, location string) {
	location = normalize(entry.RelativePath)
	original = location
	if entry.OriginalPath != "" {
		original = normalize(entry.OriginalPath)
	}
	return original, location
}

func (r *Registry) shardFor(relPath string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(relPath))
	return &r.shards[h.Sum32()%shardCount]
}

// Register claims relPath for pkg and returns the relative path pkg must
// write its file to: relPath itself when nobody else has it, the clobber
// path otherwise. order is the position of pkg in the transaction.
func (r *Registry) Register(pkg string, order int, relPath string) string {
	relPath = normalize(relPath)
	s := r.shardFor(relPath)
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.paths[relPath]
	if state == nil {
		state = &pathState{}
		s.paths[relPath] = state
	}
	for i, c := range state.contenders {
		if c.pkg == pkg {
			state.contenders[i].order = order
			return c.location
		}
	}

	location := relPath
	if len(state.contenders) > 0 {
		location = ClobberPath(relPath, pkg)
		state.dirty = true
	}
	state.contenders = append(state.contenders, contender{pkg: pkg, order: order, location: location})
	return location
}

// UnregisterPaths releases every path owned by record's package.
func (r *Registry) UnregisterPaths(record types.PrefixRecord) {
	for _, entry := range entriesOf(record) {
		original, _ := entryPaths(entry)
		s := r.shardFor(original)
		s.mu.Lock()
		if state := s.paths[original]; state != nil {
			kept := state.contenders[:0]
			for _, c := range state.contenders {
				if c.pkg != record.Name {
					kept = append(kept, c)
				}
			}
			state.contenders = kept
			if len(kept) == 0 {
				delete(s.paths, original)
			} else {
				state.dirty = true
			}
		}
		s.mu.Unlock()
	}
}

// owners returns the packages registered for relPath, in registration
// order.
func (r *Registry) owners(relPath string) []string {
	relPath = normalize(relPath)
	s := r.shardFor(relPath)
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.paths[relPath]
	if state == nil {
		return nil
	}
	owners := make([]string, 0, len(state.contenders))
	for _, c := range state.contenders {
		owners = append(owners, c.pkg)
	}
	return owners
}

// Resolve settles every contended path under prefix. The contender with
// the highest order ends up at the original path; the others keep their
// clobber paths. It returns the clobbered paths and the file moves made,
// which callers apply to the affected metadata records.
func (r *Registry) Resolve(prefix string) (map[string]ClobberedPath, []Rename, error) {
	logger := logging.GetLogger("clobber")

	clobbered := make(map[string]ClobberedPath)
	var renames []Rename

	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		keys := make([]string, 0, len(s.paths))
		for k, state := range s.paths {
			if state.dirty || len(state.contenders) > 1 {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, relPath := range keys {
			state := s.paths[relPath]
			moved, err := resolvePath(prefix, relPath, state)
			renames = append(renames, moved...)
			if err != nil {
				s.mu.Unlock()
				return nil, nil, err
			}
			state.dirty = false

			if len(state.contenders) > 1 {
				winner := state.contenders[winnerIndex(state.contenders)]
				others := make([]string, 0, len(state.contenders)-1)
				for _, c := range state.contenders {
					if c.pkg != winner.pkg {
						others = append(others, c.pkg)
					}
				}
				sort.Strings(others)
				clobbered[relPath] = ClobberedPath{Package: winner.pkg, OtherPackages: others}
				logger.Info().
					Str("path", relPath).
					Str("winner", winner.pkg).
					Strs("others", others).
					Msg("Resolved clobbered path")
			}
		}
		s.mu.Unlock()
	}

	sort.Slice(renames, func(i, j int) bool {
		if renames[i].Original != renames[j].Original {
			return renames[i].Original < renames[j].Original
		}
		return renames[i].Package < renames[j].Package
	})
	return clobbered, renames, nil
}

// winnerIndex picks the highest order; ties go to the earliest registrant.
func winnerIndex(cs []contender) int {
	best := 0
	for i, c := range cs {
		if c.order > cs[best].order {
			best = i
		}
	}
	return best
}

// resolvePath moves the winner's copy to relPath, parking whatever sat
// there under its owner's clobber path.
func resolvePath(prefix, relPath string, state *pathState) ([]Rename, error) {
	if len(state.contenders) == 0 {
		return nil, nil
	}
	w := winnerIndex(state.contenders)
	winner := state.contenders[w]
	if winner.location == relPath {
		return nil, nil
	}

	var renames []Rename
	target := filepath.Join(prefix, filepath.FromSlash(relPath))

	for i, c := range state.contenders {
		if i == w || c.location != relPath {
			continue
		}
		parked := ClobberPath(relPath, c.pkg)
		if _, err := os.Lstat(target); err == nil {
			if err := os.Rename(target, filepath.Join(prefix, filepath.FromSlash(parked))); err != nil {
				return renames, wrapRename(err, relPath, parked)
			}
		}
		state.contenders[i].location = parked
		renames = append(renames, Rename{Package: c.pkg, Original: relPath, From: relPath, To: parked})
	}

	source := filepath.Join(prefix, filepath.FromSlash(winner.location))
	if _, err := os.Lstat(source); err != nil {
		return renames, errors.Wrapf(err, errors.ErrPostProcess, "clobbered file %s of %s is missing", winner.location, winner.pkg).
			WithDetail(errors.DetailPath, winner.location)
	}
	if err := os.Rename(source, target); err != nil {
		return renames, wrapRename(err, winner.location, relPath)
	}
	renames = append(renames, Rename{Package: winner.pkg, Original: relPath, From: winner.location, To: relPath})
	state.contenders[w].location = relPath
	return renames, nil
}

func wrapRename(err error, from, to string) error {
	return errors.Wrapf(err, errors.ErrPostProcess, "failed to move %s to %s", from, to).
		WithDetail(errors.DetailPath, from)
}

// IsClobberPath reports whether relPath is a renamed copy and returns the
// original path and the package it came from.
func IsClobberPath(relPath string) (original, pkg string, ok bool) {
	i := strings.LastIndex(relPath, clobberInfix)
	if i < 0 {
		return "", "", false
	}
	return relPath[:i], relPath[i+len(clobberInfix):], true
}

// ApplyRenames rewrites the path entries of record for the moves that
// concern its package. It reports whether anything changed.
func ApplyRenames(record *types.PrefixRecord, renames []Rename) bool {
	changed := false
	for _, rn := range renames {
		if rn.Package != record.Name {
			continue
		}
		for i, entry := range record.PathsData.Paths {
			if normalize(entry.RelativePath) != rn.From {
				continue
			}
			record.PathsData.Paths[i].RelativePath = rn.To
			if rn.To == rn.Original {
				record.PathsData.Paths[i].OriginalPath = ""
			} else {
				record.PathsData.Paths[i].OriginalPath = rn.Original
			}
			changed = true
		}
		for i, f := range record.Files {
			if normalize(f) == rn.From {
				record.Files[i] = rn.To
				changed = true
			}
		}
	}
	return changed
}

func (c ClobberedPath) String() string {
	return fmt.Sprintf("%s (also in %s)", c.Package, strings.Join(c.OtherPackages, ", "))
}
