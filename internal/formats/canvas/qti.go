package canvas

import "encoding/xml"

// QTI 1.2 subset understood by the Canvas quiz importer.

type questestinterop struct {
	XMLName    xml.Name   `xml:"questestinterop"`
	Xmlns      string     `xml:"xmlns,attr"`
	Assessment assessment `xml:"assessment"`
}

type assessment struct {
	Ident   string     `xml:"ident,attr"`
	Title   string     `xml:"title,attr"`
	Section qtiSection `xml:"section"`
}

type qtiSection struct {
	Ident string    `xml:"ident,attr"`
	Items []qtiItem `xml:"item"`
}

type qtiItem struct {
	Ident         string         `xml:"ident,attr"`
	Title         string         `xml:"title,attr"`
	Metadata      []metaField    `xml:"itemmetadata>qtimetadata>qtimetadatafield"`
	Presentation  presentation   `xml:"presentation"`
	Resprocessing *resprocessing `xml:"resprocessing,omitempty"`
}

type metaField struct {
	Label string `xml:"fieldlabel"`
	Entry string `xml:"fieldentry"`
}

type presentation struct {
	Material material      `xml:"material"`
	Lids     []responseLid `xml:"response_lid"`
	Str      *responseStr  `xml:"response_str,omitempty"`
}

type material struct {
	Text mattext `xml:"mattext"`
}

type mattext struct {
	Type string `xml:"texttype,attr"`
	Body string `xml:",chardata"`
}

type responseLid struct {
	Ident       string          `xml:"ident,attr"`
	Cardinality string          `xml:"rcardinality,attr"`
	Material    *material       `xml:"material,omitempty"`
	Labels      []responseLabel `xml:"render_choice>response_label"`
}

type responseLabel struct {
	Ident    string   `xml:"ident,attr"`
	Material material `xml:"material"`
}

type responseStr struct {
	Ident       string   `xml:"ident,attr"`
	Cardinality string   `xml:"rcardinality,attr"`
	Label       fibLabel `xml:"render_fib>response_label"`
}

type fibLabel struct {
	Ident    string `xml:"ident,attr"`
	Rshuffle string `xml:"rshuffle,attr"`
}

type resprocessing struct {
	Outcomes   decvar          `xml:"outcomes>decvar"`
	Conditions []respcondition `xml:"respcondition"`
}

type decvar struct {
	MaxValue string `xml:"maxvalue,attr"`
	MinValue string `xml:"minvalue,attr"`
	VarName  string `xml:"varname,attr"`
	VarType  string `xml:"vartype,attr"`
}

type respcondition struct {
	Continue string       `xml:"continue,attr"`
	Var      conditionvar `xml:"conditionvar"`
	Set      setvar       `xml:"setvar"`
}

type conditionvar struct {
	Equal []varequal `xml:"varequal"`
	And   *andCond   `xml:"and,omitempty"`
}

type andCond struct {
	Equal []varequal `xml:"varequal"`
	Not   []notCond  `xml:"not"`
}

type notCond struct {
	Equal varequal `xml:"varequal"`
}

type varequal struct {
	RespIdent string `xml:"respident,attr"`
	Value     string `xml:",chardata"`
}

type setvar struct {
	Action  string `xml:"action,attr"`
	VarName string `xml:"varname,attr"`
	Value   string `xml:",chardata"`
}

// imsmanifest.xml; every archive entry is listed as a resource file.

type imsManifest struct {
	XMLName       xml.Name      `xml:"manifest"`
	Identifier    string        `xml:"identifier,attr"`
	Xmlns         string        `xml:"xmlns,attr,omitempty"`
	Schema        string        `xml:"metadata>schema"`
	SchemaVersion string        `xml:"metadata>schemaversion"`
	Organizations struct{}      `xml:"organizations"`
	Resources     []imsResource `xml:"resources>resource"`
}

type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Type       string    `xml:"type,attr"`
	Href       string    `xml:"href,attr"`
	Files      []imsFile `xml:"file"`
}

type imsFile struct {
	Href string `xml:"href,attr"`
}
