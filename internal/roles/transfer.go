package roles

import (
	"context"
	"errors"
	"fmt"
)

// ConflictResolution tells the importer what to do when an incoming role name
// is already taken within its scope key.
type ConflictResolution string

const (
	// ResolveRename imports under the lowest free "Name (n)" variant.
	ResolveRename ConflictResolution = "rename"
	// ResolveOverwrite replaces the existing role, bumping its version.
	ResolveOverwrite ConflictResolution = "overwrite"
	// ResolveSkip leaves the existing role untouched.
	ResolveSkip ConflictResolution = "skip"
)

func ValidResolution(r ConflictResolution) bool {
	switch r {
	case ResolveRename, ResolveOverwrite, ResolveSkip:
		return true
	default:
		return false
	}
}

// ExportDocument is the interchange format for role definitions.
// Versions and editor metadata are intentionally not part of the payload;
// they are assigned by the importing system.
type ExportDocument struct {
	ExportedAt string  `json:"exportedAt"`
	Roles      []Draft `json:"roles"`
}

// ImportSummary reports the outcome of a bulk import. Every entry is accounted
// for exactly once across Imported, Skipped and Errors; Conflicts describes
// each name collision and how it was resolved. Both lists are always present
// in the JSON envelope, even when empty.
type ImportSummary struct {
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Conflicts []string `json:"conflicts"`
	Errors    []string `json:"errors"`
}

const importChangeNotes = "imported via bulk import"

// Export packages the named roles for transfer. Unknown ids are silently
// skipped so a stale selection does not fail the whole export.
func (g *Registry) Export(ctx context.Context, roleIDs []string) (ExportDocument, error) {
	doc := ExportDocument{
		ExportedAt: g.clock().Format("2006-01-02T15:04:05Z07:00"),
		Roles:      make([]Draft, 0, len(roleIDs)),
	}
	for _, id := range roleIDs {
		r, err := g.repo.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return ExportDocument{}, err
		}
		doc.Roles = append(doc.Roles, Draft{
			Name:        r.Name,
			Description: r.Description,
			Scope:       r.Scope,
			TenantType:  r.TenantType,
			Permissions: append([]string(nil), r.Permissions...),
		})
	}
	return doc, nil
}

// Import applies an export document entry by entry. A bad entry never aborts
// the batch: structural failures are reported in the summary and processing
// continues with the next entry.
func (g *Registry) Import(ctx context.Context, actor string, doc ExportDocument, res ConflictResolution) (ImportSummary, error) {
	if !ValidResolution(res) {
		verr := &ValidationError{}
		verr.add("conflictResolution", "must be rename, overwrite or skip")
		return ImportSummary{}, verr
	}

	sum := ImportSummary{Conflicts: []string{}, Errors: []string{}}
	for i, entry := range doc.Roles {
		entry.ChangeNotes = importChangeNotes

		if err := g.validateDraft(entry, true); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("entry %d (%q): %v", i, entry.Name, err))
			continue
		}

		existing, err := g.repo.FindByName(ctx, entry.Name, entry.Scope, entry.TenantType)
		switch {
		case errors.Is(err, ErrNotFound):
			if _, err := g.Create(ctx, actor, entry); err != nil {
				sum.Errors = append(sum.Errors, fmt.Sprintf("entry %d (%q): %v", i, entry.Name, err))
				continue
			}
			sum.Imported++
		case err != nil:
			return sum, err
		default:
			switch res {
			case ResolveSkip:
				sum.Conflicts = append(sum.Conflicts, fmt.Sprintf("%q skipped, name already in use", entry.Name))
				sum.Skipped++
			case ResolveOverwrite:
				sum.Conflicts = append(sum.Conflicts, fmt.Sprintf("%q overwrote the existing role", entry.Name))
				if _, err := g.Update(ctx, actor, existing.ID, existing.Version, entry); err != nil {
					sum.Errors = append(sum.Errors, fmt.Sprintf("entry %d (%q): %v", i, entry.Name, err))
					continue
				}
				sum.Imported++
			case ResolveRename:
				renamed, err := g.freeName(ctx, entry)
				if err != nil {
					return sum, err
				}
				sum.Conflicts = append(sum.Conflicts, fmt.Sprintf("%q renamed to %q", entry.Name, renamed))
				entry.Name = renamed
				if _, err := g.Create(ctx, actor, entry); err != nil {
					sum.Errors = append(sum.Errors, fmt.Sprintf("entry %d (%q): %v", i, entry.Name, err))
					continue
				}
				sum.Imported++
			}
		}
	}
	return sum, nil
}

// freeName finds the lowest-numbered "Name (n)" variant not yet taken within
// the entry's scope key.
func (g *Registry) freeName(ctx context.Context, d Draft) (string, error) {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", d.Name, n)
		_, err := g.repo.FindByName(ctx, candidate, d.Scope, d.TenantType)
		if errors.Is(err, ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
}
