package schemaorg

// SchemaType represents supported schema.org @type values.
type SchemaType string

const (
	TypeScholarlyArticle SchemaType = "ScholarlyArticle"
	TypeBook             SchemaType = "Book"
	TypeChapter          SchemaType = "Chapter"
	TypeDataset          SchemaType = "Dataset"
	TypeThesis           SchemaType = "Thesis"
	TypeReport           SchemaType = "Report"
	TypeMap              SchemaType = "Map"
	TypePresentationDoc  SchemaType = "PresentationDigitalDocument"
	TypeSoftware         SchemaType = "SoftwareSourceCode"
	TypeAudioObject      SchemaType = "AudioObject"
	TypeImageObject      SchemaType = "ImageObject"
	TypeVideoObject      SchemaType = "VideoObject"
	TypeMediaObject      SchemaType = "MediaObject"
	TypePerson           SchemaType = "Person"
	TypeOrganization     SchemaType = "Organization"
	TypePeriodical       SchemaType = "Periodical"
	TypeCreativeSeries   SchemaType = "CreativeWorkSeries"
	TypeCreativeWork     SchemaType = "CreativeWork" // Fallback type
)

// Thing is the base schema.org type.
type Thing struct {
	Context     string     `json:"@context,omitempty"`
	Type        SchemaType `json:"@type"`
	ID          string     `json:"@id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	SameAs      string     `json:"sameAs,omitempty"`
}

// CreativeWork extends Thing with the properties items carry.
type CreativeWork struct {
	Thing

	AlternativeTitle string          `json:"alternativeHeadline,omitempty"`
	Abstract         string          `json:"abstract,omitempty"`
	Identifier       []PropertyValue `json:"identifier,omitempty"`

	Author      []Agent `json:"author,omitempty"`
	Editor      []Agent `json:"editor,omitempty"`
	Contributor []Agent `json:"contributor,omitempty"`
	Funder      []Agent `json:"funder,omitempty"`
	Publisher   *Agent  `json:"publisher,omitempty"`

	DateCreated   string `json:"dateCreated,omitempty"`
	DatePublished string `json:"datePublished,omitempty"`
	DateModified  string `json:"dateModified,omitempty"`

	Genre      []string `json:"genre,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	InLanguage string   `json:"inLanguage,omitempty"`

	License         string `json:"license,omitempty"`
	CopyrightNotice string `json:"copyrightNotice,omitempty"`

	IsPartOf []CreativeWork `json:"isPartOf,omitempty"`
	Encoding []MediaObject  `json:"encoding,omitempty"`

	// Thesis only
	InSupportOf string `json:"inSupportOf,omitempty"`
}

// Agent is a Person or an Organization.
type Agent struct {
	Type       SchemaType `json:"@type"`
	Name       string     `json:"name"`
	GivenName  string     `json:"givenName,omitempty"`
	FamilyName string     `json:"familyName,omitempty"`
	SameAs     string     `json:"sameAs,omitempty"`
}

// PropertyValue is a typed identifier.
type PropertyValue struct {
	Type       string `json:"@type"`
	PropertyID string `json:"propertyID"`
	Value      string `json:"value"`
}

// MediaObject describes one file of the item.
type MediaObject struct {
	Type           SchemaType `json:"@type"`
	Name           string     `json:"name"`
	EncodingFormat string     `json:"encodingFormat,omitempty"`
	ContentSize    int64      `json:"contentSize,omitempty"`
	ContentURL     string     `json:"contentUrl,omitempty"`
}
