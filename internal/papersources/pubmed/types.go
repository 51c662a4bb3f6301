// Package pubmed provides a collector for the NCBI PubMed E-utilities API.
//
// A search is two requests: esearch returns the PMIDs matching a query as
// JSON, and efetch returns the article records for those PMIDs as XML.
//
// The E-utilities API documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import "encoding/xml"

// esearchResponse is the JSON body returned by esearch.fcgi.
type esearchResponse struct {
	Result struct {
		Count     string   `json:"count"`
		IDList    []string `json:"idlist"`
		ErrorList *struct {
			PhraseNotFound []string `json:"phrasesnotfound"`
		} `json:"errorlist,omitempty"`
	} `json:"esearchresult"`
}

// articleSet is the XML body returned by efetch.fcgi.
type articleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation medlineCitation `xml:"MedlineCitation"`
	Data     pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID    string  `xml:"PMID"`
	Article article `xml:"Article"`
}

type article struct {
	Journal      journal       `xml:"Journal"`
	Title        innerText     `xml:"ArticleTitle"`
	ELocationIDs []eLocationID `xml:"ELocationID"`
	Abstract     *abstract     `xml:"Abstract"`
	AuthorList   *authorList   `xml:"AuthorList"`
	PubTypes     []string      `xml:"PublicationTypeList>PublicationType"`
	ArticleDates []articleDate `xml:"ArticleDate"`
}

// innerText captures element text including nested markup such as <i>.
type innerText struct {
	Value string `xml:",innerxml"`
}

type journal struct {
	Title           string  `xml:"Title"`
	ISOAbbreviation string  `xml:"ISOAbbreviation"`
	PubDate         pubDate `xml:"JournalIssue>PubDate"`
}

type pubDate struct {
	Year        string `xml:"Year"`
	MedlineDate string `xml:"MedlineDate"`
}

type articleDate struct {
	DateType string `xml:"DateType,attr"`
	Year     string `xml:"Year"`
}

type eLocationID struct {
	Type  string `xml:"EIdType,attr"`
	Valid string `xml:"ValidYN,attr"`
	Value string `xml:",chardata"`
}

type abstract struct {
	Texts []abstractText `xml:"AbstractText"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Value string `xml:",innerxml"`
}

type authorList struct {
	Authors []author `xml:"Author"`
}

type author struct {
	ValidYN        string `xml:"ValidYN,attr"`
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedData struct {
	ArticleIDs []articleID `xml:"ArticleIdList>ArticleId"`
}

type articleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}
