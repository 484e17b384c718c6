package moodle

import "encoding/xml"

type quiz struct {
	XMLName   xml.Name    `xml:"quiz"`
	Questions []mquestion `xml:"question"`
}

type text struct {
	Body string `xml:",cdata"`
}

type richText struct {
	Format string `xml:"format,attr"`
	Text   text   `xml:"text"`
	Files  []file `xml:"file"`
}

type file struct {
	Name     string `xml:"name,attr"`
	Path     string `xml:"path,attr"`
	Encoding string `xml:"encoding,attr"`
	Data     string `xml:",chardata"`
}

type mquestion struct {
	Type            string   `xml:"type,attr"`
	Name            text     `xml:"name>text"`
	QuestionText    richText `xml:"questiontext"`
	GeneralFeedback richText `xml:"generalfeedback"`
	DefaultGrade    string   `xml:"defaultgrade"`
	Penalty         string   `xml:"penalty"`
	Hidden          int      `xml:"hidden"`
	IDNumber        string   `xml:"idnumber"`
	Single          string   `xml:"single,omitempty"`
	ShuffleAnswers  string   `xml:"shuffleanswers,omitempty"`
	AnswerNumbering string   `xml:"answernumbering,omitempty"`
	*Feedback
	*EssayOptions
	Answers      []answer      `xml:"answer"`
	Subquestions []subquestion `xml:"subquestion"`
	DragBoxes    []dragBox     `xml:"dragbox"`
}

// Feedback is the static combined feedback multichoice, matching and ddwtos
// questions carry.
type Feedback struct {
	Correct   richText `xml:"correctfeedback"`
	Partially richText `xml:"partiallycorrectfeedback"`
	Incorrect richText `xml:"incorrectfeedback"`
}

type EssayOptions struct {
	ResponseFormat      string   `xml:"responseformat"`
	ResponseRequired    int      `xml:"responserequired"`
	ResponseFieldLines  int      `xml:"responsefieldlines"`
	Attachments         int      `xml:"attachments"`
	AttachmentsRequired int      `xml:"attachmentsrequired"`
	GraderInfo          richText `xml:"graderinfo"`
	ResponseTemplate    richText `xml:"responsetemplate"`
}

type answer struct {
	Fraction string   `xml:"fraction,attr"`
	Format   string   `xml:"format,attr"`
	Text     text     `xml:"text"`
	Feedback richText `xml:"feedback"`
}

type subquestion struct {
	Format string `xml:"format,attr"`
	Text   text   `xml:"text"`
	Answer text   `xml:"answer>text"`
}

type dragBox struct {
	Text     string `xml:"text"`
	Group    int    `xml:"group"`
	Infinite string `xml:"infinite,omitempty"`
}
