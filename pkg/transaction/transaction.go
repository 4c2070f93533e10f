package transaction

import (
	"sort"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/types"
)

// Operation is one step of a transaction. Remove and Install both set is
// an in-place change of a package.
type Operation struct {
	Remove  *types.PrefixRecord
	Install *types.RepoDataRecord
}

// RecordToRemove returns the installed record this operation removes.
func (o Operation) RecordToRemove() *types.PrefixRecord {
	return o.Remove
}

// RecordToInstall returns the desired record this operation installs.
func (o Operation) RecordToInstall() *types.RepoDataRecord {
	return o.Install
}

// Name returns the package name the operation is about.
func (o Operation) Name() string {
	if o.Install != nil {
		return o.Install.Name
	}
	if o.Remove != nil {
		return o.Remove.Name
	}
	return ""
}

// Transaction is an ordered list of operations plus the context needed to
// carry them out. It is not modified after creation.
type Transaction struct {
	Operations []Operation
	Platform   types.Platform

	// PythonInfo describes the interpreter after the transaction and
	// CurrentPythonInfo the one before it; either may be nil.
	PythonInfo        *types.PythonInfo
	CurrentPythonInfo *types.PythonInfo

	// Unchanged are the installed records no operation touches.
	Unchanged []types.PrefixRecord
}

// RemovedPackages returns every record an operation removes.
func (t *Transaction) RemovedPackages() []types.PrefixRecord {
	var out []types.PrefixRecord
	for _, op := range t.Operations {
		if op.Remove != nil {
			out = append(out, *op.Remove)
		}
	}
	return out
}

// InstalledPackages returns every record an operation installs.
func (t *Transaction) InstalledPackages() []types.RepoDataRecord {
	var out []types.RepoDataRecord
	for _, op := range t.Operations {
		if op.Install != nil {
			out = append(out, *op.Install)
		}
	}
	return out
}

// UnchangedPackages returns how many installed packages are left alone.
func (t *Transaction) UnchangedPackages() int {
	return len(t.Unchanged)
}

// FromCurrentAndDesired diffs the installed records against the desired
// ones. Packages named in reinstall are changed even when identical.
//
// Install and change operations come first, ordered so dependencies are
// installed before their dependents, ties keeping the order of desired.
// Pure removals follow, sorted by name.
func FromCurrentAndDesired(current []types.PrefixRecord, desired []types.RepoDataRecord, reinstall map[string]struct{}, platform types.Platform) (*Transaction, error) {
	currentByName := make(map[string]int, len(current))
	for i, rec := range current {
		name := strings.ToLower(rec.Name)
		if _, dup := currentByName[name]; dup {
			return nil, errors.Newf(errors.ErrTransaction, "package %s is installed more than once", rec.Name).
				WithDetail(errors.DetailPackage, rec.Name)
		}
		currentByName[name] = i
	}
	desiredByName := make(map[string]int, len(desired))
	for i, rec := range desired {
		name := rec.NormalizedName()
		if _, dup := desiredByName[name]; dup {
			return nil, errors.Newf(errors.ErrTransaction, "package %s is requested more than once", rec.Name).
				WithDetail(errors.DetailPackage, rec.Name)
		}
		desiredByName[name] = i
	}

	tx := &Transaction{
		Platform:          platform,
		PythonInfo:        pythonInfoOf(desiredPackageRecords(desired), platform),
		CurrentPythonInfo: pythonInfoOf(currentPackageRecords(current), platform),
	}
	pythonChanged := tx.PythonInfo != nil && tx.CurrentPythonInfo != nil &&
		tx.PythonInfo.ShortVersion != tx.CurrentPythonInfo.ShortVersion

	var installs []Operation
	for i := range desired {
		want := &desired[i]
		idx, installed := currentByName[want.NormalizedName()]
		if !installed {
			installs = append(installs, Operation{Install: want})
			continue
		}
		have := &current[idx]
		_, forced := reinstall[want.NormalizedName()]
		relink := pythonChanged && have.Noarch == types.NoArchPython
		if !forced && !relink && have.RepoDataRecord.SameArtifact(*want) {
			tx.Unchanged = append(tx.Unchanged, *have)
			continue
		}
		installs = append(installs, Operation{Remove: have, Install: want})
	}

	var removals []Operation
	for i := range current {
		if _, wanted := desiredByName[strings.ToLower(current[i].Name)]; !wanted {
			removals = append(removals, Operation{Remove: &current[i]})
		}
	}
	sort.SliceStable(removals, func(i, j int) bool {
		return removals[i].Remove.Name < removals[j].Remove.Name
	})

	tx.Operations = append(orderByDependencies(installs), removals...)
	return tx, nil
}

// orderByDependencies sorts operations topologically over their depends
// names. Members of a cycle keep their input order after everything else.
func orderByDependencies(ops []Operation) []Operation {
	index := make(map[string]int, len(ops))
	for i, op := range ops {
		index[strings.ToLower(op.Install.Name)] = i
	}

	indegree := make([]int, len(ops))
	dependents := make([][]int, len(ops))
	for i, op := range ops {
		seen := map[int]bool{}
		for _, dep := range op.Install.DependencyNames() {
			j, ok := index[dep]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]Operation, 0, len(ops))
	done := make([]bool, len(ops))
	for len(ordered) < len(ops) {
		next := -1
		for i := range ops {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			// Only cycles remain.
			for i := range ops {
				if !done[i] {
					ordered = append(ordered, ops[i])
				}
			}
			break
		}
		done[next] = true
		ordered = append(ordered, ops[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return ordered
}

func desiredPackageRecords(records []types.RepoDataRecord) []types.PackageRecord {
	out := make([]types.PackageRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.PackageRecord)
	}
	return out
}

func currentPackageRecords(records []types.PrefixRecord) []types.PackageRecord {
	out := make([]types.PackageRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.PackageRecord)
	}
	return out
}

func pythonInfoOf(records []types.PackageRecord, platform types.Platform) *types.PythonInfo {
	for _, r := range records {
		if strings.EqualFold(r.Name, "python") {
			if info, ok := types.NewPythonInfo(r.Version, platform); ok {
				return info
			}
		}
	}
	return nil
}
