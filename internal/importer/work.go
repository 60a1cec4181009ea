package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

// HostVenueKey is the key of the join entry that holds a work's copy in its
// host venue.
func HostVenueKey(work edit.EntryKey) edit.EntryKey {
	return work + "-hv"
}

type WorkImporter struct{}

func (WorkImporter) Kind() openalex.EntityKind { return openalex.Works }

func (WorkImporter) MapToEdits(_ context.Context, raw json.RawMessage) ([]edit.Edit, error) {
	var w openalex.Work
	if err := decode(openalex.Works, raw, &w); err != nil {
		return nil, err
	}
	key, err := keyFromID(w.ID, "id")
	if err != nil {
		return nil, err
	}
	mag, err := magID(w.IDs.MAG)
	if err != nil {
		return nil, err
	}

	title := nonEmpty(w.Title, w.DisplayName)
	edits := []edit.Edit{
		upsert(TypeWork, key, title, ""),
		facts(key,
			edit.StringProperty(PropTitle, title),
			edit.StringProperty(PropDOI, util.DOIFromURL(nonEmpty(w.IDs.DOI, w.DOI))),
			edit.OptionalIntegerProperty(PropPublicationYear, w.PublicationYear),
			edit.DateProperty(PropPublicationDate, w.PublicationDate),
			edit.StringProperty(PropWorkType, w.Type),
			edit.BooleanProperty(PropIsOpenAccess, w.OpenAccess.IsOA),
			edit.StringProperty(PropOAStatus, w.OpenAccess.OAStatus),
			edit.StringProperty(PropOAURL, w.OpenAccess.OAURL),
			edit.IntegerProperty(PropCitedByCount, w.CitedByCount),
			edit.BooleanProperty(PropIsRetracted, w.IsRetracted),
			edit.BooleanProperty(PropIsParatext, w.IsParatext),
			edit.OptionalIntegerProperty(PropMAG, mag),
			edit.StringProperty(PropPMID, util.IDFromURLIfSet(w.IDs.PMID)),
			edit.StringProperty(PropPMCID, util.IDFromURLIfSet(w.IDs.PMCID)),
			edit.DateProperty(PropUpdatedDate, w.UpdatedDate),
		),
	}

	hostEdits, err := hostVenueEdits(key, w.HostVenue)
	if err != nil {
		return nil, err
	}
	edits = append(edits, hostEdits...)

	var authors []edit.EntryKey
	for i, as := range w.Authorships {
		authorKey, err := keyFromID(as.Author.ID, fmt.Sprintf("authorships[%d].author.id", i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit.Stub(TypeAuthor, authorKey, as.Author.DisplayName))
		authors = append(authors, authorKey)
	}
	edits = append(edits, edit.Relationships(key, RelAssociatedAuthors, authors))

	var concepts []edit.EntryKey
	for i, c := range w.Concepts {
		conceptKey, err := keyFromID(c.ID, fmt.Sprintf("concepts[%d].id", i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit.Stub(TypeConcept, conceptKey, c.DisplayName))
		concepts = append(concepts, conceptKey)
	}
	edits = append(edits, edit.Relationships(key, RelConcepts, concepts))

	return edits, nil
}

// hostVenueEdits links work to its host venue through a per work join entry
// that carries the work's URL, version and license. A host venue without id
// clears the link.
func hostVenueEdits(work edit.EntryKey, hv *openalex.HostVenue) ([]edit.Edit, error) {
	if hv == nil || hv.ID == "" {
		return []edit.Edit{edit.Relationships(work, RelHasHostVenue, nil)}, nil
	}
	venueKey, err := keyFromID(hv.ID, "host_venue.id")
	if err != nil {
		return nil, err
	}
	hvKey := HostVenueKey(work)

	return []edit.Edit{
		edit.Stub(TypeVenue, venueKey, hv.DisplayName),
		upsert(TypeHostVenue, hvKey, hv.DisplayName, ""),
		facts(hvKey,
			edit.StringProperty(PropURL, hv.URL),
			edit.StringProperty(PropVersion, hv.Version),
			edit.StringProperty(PropLicense, hv.License),
			edit.BooleanProperty(PropIsOpenAccess, hv.IsOA),
		),
		edit.Relationships(hvKey, RelVenue, []edit.EntryKey{venueKey}),
		edit.Relationships(work, RelHasHostVenue, []edit.EntryKey{hvKey}),
	}, nil
}
