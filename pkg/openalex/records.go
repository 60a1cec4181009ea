// Package openalex contains the record types of the OpenAlex snapshot. Only
// the fields the importers read are declared; unknown fields are ignored.
package openalex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NumericID is a legacy numeric identifier that the snapshot encodes either
// as a JSON string or as a JSON number. The zero value means "absent".
type NumericID string

func (n *NumericID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("numeric id: %w", err)
	}
	*n = NumericID(num.String())
	return nil
}

// DehydratedConcept is the short form of a concept embedded in other records.
type DehydratedConcept struct {
	ID          string `json:"id"`
	Wikidata    string `json:"wikidata"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}

type Concept struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	Wikidata     string  `json:"wikidata"`
	Level        int     `json:"level"`
	Description  *string `json:"description"`
	WorksCount   int64   `json:"works_count"`
	CitedByCount int64   `json:"cited_by_count"`
	IDs          struct {
		OpenAlex  string    `json:"openalex"`
		Wikidata  string    `json:"wikidata"`
		Wikipedia string    `json:"wikipedia"`
		UMLSAUI   []string  `json:"umls_aui"`
		UMLSCUI   []string  `json:"umls_cui"`
		MAG       NumericID `json:"mag"`
	} `json:"ids"`
	Ancestors       []DehydratedConcept `json:"ancestors"`
	RelatedConcepts []struct {
		DehydratedConcept
		Score float64 `json:"score"`
	} `json:"related_concepts"`
	WorksAPIURL string `json:"works_api_url"`
	UpdatedDate string `json:"updated_date"`
}

// InstitutionRelationship is the discriminant of an associated institution.
type InstitutionRelationship string

const (
	RelationshipParent  InstitutionRelationship = "parent"
	RelationshipChild   InstitutionRelationship = "child"
	RelationshipRelated InstitutionRelationship = "related"
)

// DehydratedInstitution is the short form of an institution embedded in
// other records.
type DehydratedInstitution struct {
	ID          string `json:"id"`
	ROR         string `json:"ror"`
	DisplayName string `json:"display_name"`
	CountryCode string `json:"country_code"`
	Type        string `json:"type"`
}

type Institution struct {
	DehydratedInstitution
	HomepageURL             string   `json:"homepage_url"`
	DisplayNameAcronyms     []string `json:"display_name_acronyms"`
	DisplayNameAlternatives []string `json:"display_name_alternatives"`
	WorksCount              int64    `json:"works_count"`
	CitedByCount            int64    `json:"cited_by_count"`
	IDs                     struct {
		OpenAlex  string    `json:"openalex"`
		ROR       string    `json:"ror"`
		MAG       NumericID `json:"mag"`
		GRID      string    `json:"grid"`
		Wikipedia string    `json:"wikipedia"`
		Wikidata  string    `json:"wikidata"`
	} `json:"ids"`
	Geo struct {
		City        string `json:"city"`
		Region      string `json:"region"`
		CountryCode string `json:"country_code"`
		Country     string `json:"country"`
	} `json:"geo"`
	AssociatedInstitutions []struct {
		DehydratedInstitution
		Relationship InstitutionRelationship `json:"relationship"`
	} `json:"associated_institutions"`
	WorksAPIURL string `json:"works_api_url"`
	UpdatedDate string `json:"updated_date"`
	CreatedDate string `json:"created_date"`
}

// DehydratedAuthor is the short form of an author embedded in works.
type DehydratedAuthor struct {
	ID          string `json:"id"`
	ORCID       string `json:"orcid"`
	DisplayName string `json:"display_name"`
}

type Author struct {
	DehydratedAuthor
	DisplayNameAlternatives []string `json:"display_name_alternatives"`
	WorksCount              int64    `json:"works_count"`
	CitedByCount            int64    `json:"cited_by_count"`
	IDs                     struct {
		OpenAlex  string    `json:"openalex"`
		ORCID     string    `json:"orcid"`
		MAG       NumericID `json:"mag"`
		Twitter   string    `json:"twitter"`
		Wikipedia string    `json:"wikipedia"`
		Scopus    string    `json:"scopus"`
	} `json:"ids"`
	LastKnownInstitution *DehydratedInstitution `json:"last_known_institution"`
	WorksAPIURL          string                 `json:"works_api_url"`
	UpdatedDate          string                 `json:"updated_date"`
	CreatedDate          string                 `json:"created_date"`
}

// DehydratedVenue is the short form of a venue embedded in works. The id may
// be missing on alternate host venues.
type DehydratedVenue struct {
	ID          string   `json:"id"`
	ISSNL       string   `json:"issn_l"`
	ISSN        []string `json:"issn"`
	DisplayName string   `json:"display_name"`
	Publisher   string   `json:"publisher"`
}

type Venue struct {
	DehydratedVenue
	AbbreviatedTitle string   `json:"abbreviated_title"`
	AlternateTitles  []string `json:"alternate_titles"`
	HomepageURL      string   `json:"homepage_url"`
	WorksCount       int64    `json:"works_count"`
	CitedByCount     int64    `json:"cited_by_count"`
	IsOA             *bool    `json:"is_oa"`
	IsInDOAJ         *bool    `json:"is_in_doaj"`
	IDs              struct {
		OpenAlex string    `json:"openalex"`
		ISSNL    string    `json:"issn_l"`
		MAG      NumericID `json:"mag"`
		ISSN     []string  `json:"issn"`
		Fatcat   string    `json:"fatcat"`
		Wikidata string    `json:"wikidata"`
	} `json:"ids"`
	WorksAPIURL string `json:"works_api_url"`
	UpdatedDate string `json:"updated_date"`
	CreatedDate string `json:"created_date"`
}

// HostVenue is a venue as it hosts one particular work.
type HostVenue struct {
	DehydratedVenue
	URL     string `json:"url"`
	IsOA    *bool  `json:"is_oa"`
	Version string `json:"version"`
	License string `json:"license"`
}

type Authorship struct {
	AuthorPosition       string                  `json:"author_position"`
	Author               DehydratedAuthor        `json:"author"`
	Institutions         []DehydratedInstitution `json:"institutions"`
	RawAffiliationString string                  `json:"raw_affiliation_string"`
}

type Work struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	DisplayName     string `json:"display_name"`
	PublicationYear *int64 `json:"publication_year"`
	PublicationDate string `json:"publication_date"`
	IDs             struct {
		OpenAlex string    `json:"openalex"`
		DOI      string    `json:"doi"`
		MAG      NumericID `json:"mag"`
		PMID     string    `json:"pmid"`
		PMCID    string    `json:"pmcid"`
	} `json:"ids"`
	HostVenue  *HostVenue `json:"host_venue"`
	Type       string     `json:"type"`
	OpenAccess struct {
		IsOA     *bool  `json:"is_oa"`
		OAStatus string `json:"oa_status"`
		OAURL    string `json:"oa_url"`
	} `json:"open_access"`
	Authorships  []Authorship `json:"authorships"`
	CitedByCount int64        `json:"cited_by_count"`
	IsRetracted  *bool        `json:"is_retracted"`
	IsParatext   *bool        `json:"is_paratext"`
	Concepts     []struct {
		DehydratedConcept
		Score float64 `json:"score"`
	} `json:"concepts"`
	ReferencedWorks []string `json:"referenced_works"`
	RelatedWorks    []string `json:"related_works"`
	UpdatedDate     string   `json:"updated_date"`
	CreatedDate     string   `json:"created_date"`
}
