package importer

// Entry types of the site.
const (
	TypeConcept     = "concept"
	TypeInstitution = "institution"
	TypeAuthor      = "author"
	TypeVenue       = "venue"
	TypeWork        = "work"
	TypeHostVenue   = "host-venue"
)

// External identifier properties.
const (
	PropWikidata    = "wikidata-id"
	PropMAG         = "mag-id"
	PropWikipedia   = "wikipedia-id"
	PropScopus      = "scopus-id"
	PropORCID       = "orcid"
	PropROR         = "ror-id"
	PropFatcat      = "fatcat-id"
	PropISSNL       = "issn-l"
	PropISSN        = "issn"
	PropDOI         = "doi"
	PropPMID        = "pmid"
	PropPMCID       = "pmc-id"
	PropTwitter     = "twitter-handle"
	PropUMLSAUI     = "umls-aui"
	PropUMLSCUI     = "umls-cui"
	PropWorksAPIURL = "works-api-url"
)

// Other properties.
const (
	PropAbbreviatedTitle        = "abbreviated-title"
	PropAlternateTitles         = "alternate-titles"
	PropDisplayNameAlternatives = "display-name-alternatives"
	PropHomepageURL             = "homepage-url"
	PropLevel                   = "level"
	PropWorksCount              = "works-count"
	PropUpdatedDate             = "updated-date"
	PropCitedByCount            = "cited-by-count"
	PropCountryCode             = "country-code"
	PropInstitutionType         = "institution-type"
	PropTitle                   = "title"
	PropPublicationYear         = "publication-year"
	PropPublicationDate         = "publication-date"
	PropWorkType                = "work-type"
	PropIsOpenAccess            = "is-open-access"
	PropIsInDOAJ                = "is-in-doaj"
	PropOAStatus                = "oa-status"
	PropOAURL                   = "oa-url"
	PropIsRetracted             = "is-retracted"
	PropIsParatext              = "is-paratext"
	PropURL                     = "url"
	PropVersion                 = "version"
	PropLicense                 = "license"
)

// Relationship properties. Child concepts and child institutions are the
// store computed inverses of the parent relationships and are never written.
const (
	RelLastKnownInstitution = "last-known-institution"
	RelAssociatedAuthors    = "associated-authors"
	RelHasHostVenue         = "has-host-venue"
	RelVenue                = "venue"
	RelParentConcept        = "parent-concept"
	RelRelatedConcepts      = "related-concepts"
	RelParentInstitutions   = "parent-institutions"
	RelRelatedInstitutions  = "related-institutions"
	RelConcepts             = "concepts"
)
