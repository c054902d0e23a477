package portal

// Selectors holds the portal markup the harvester relies on
type Selectors struct {
	LoginUser     string
	LoginPassword string
	LoginSubmit   string

	ListingRows   string
	ListingAnchor string
	StartDate     string
	EndDate       string
	NextPage      string

	DetailRow string
	// ExpandCandidates are tried in order inside a row before GlobalExpand
	ExpandCandidates []string
	GlobalExpand     string
	// ExpandedByRef is a format string taking the row reference attribute
	// and its quoted value
	ExpandedByRef string
	AnyExpanded   string

	Description        string
	Quantity           string
	AddressLines       string
	AddressPlaceholder string
	Details            string
}

// DefaultSelectors returns the selectors of the Coupa supplier portal
func DefaultSelectors() Selectors {
	return Selectors{
		LoginUser:     "#user_login",
		LoginPassword: "#user_password",
		LoginSubmit:   "#login_button",

		ListingRows:   "tbody#quote_request_tbody tr",
		ListingAnchor: "tbody#quote_request_tbody a",
		StartDate:     "td.s-datatable-cell-start_time",
		EndDate:       "td.s-datatable-cell-end_time",
		NextPage:      "a.next_page",

		DetailRow: "div.line.s-itemsAndServicesLine",
		ExpandCandidates: []string{
			".s-expandSidebar-clickable",
			".s-expandSidebar",
			"div.s-expandSidebar-clickable",
			"button[aria-label='Expand']",
			"div[role='button'] .s-expandSidebar-clickable",
		},
		GlobalExpand:  ".s-expandSidebar-clickable",
		ExpandedByRef: "div.line.s-itemsAndServicesLine[%s=%s].-expanded",
		AnyExpanded:   "div.line.s-itemsAndServicesLine.-expanded",

		Description:        ".s-extended_description p.s-textField",
		Quantity:           ".s-quantity span.s-value",
		AddressLines:       ".s-ship_to_address .addressLines",
		AddressPlaceholder: ".s-ship_to_address .placeholderText",
		Details:            ".s-details .s-attachmentText",
	}
}
