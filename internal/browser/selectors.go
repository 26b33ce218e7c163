package browser

// SignInURL is where Authenticate starts.
const SignInURL = "https://accounts.google.com"

var (
	dismissQueries = []Query{
		{Label: "dismiss", Strategy: ByXPath, Selector: "//button[contains(., 'Dismiss') or contains(., 'Got it')]"},
	}
	micPopupQueries = []Query{
		{Label: "mic popup cancel", Strategy: ByCSS, Selector: "[data-mdc-dialog-action='cancel']"},
	}
	micToggleQueries = []Query{
		{Label: "microphone toggle", Strategy: ByCSS, Selector: "[aria-label*='microphone']"},
		{Label: "mic toggle", Strategy: ByCSS, Selector: "[aria-label*='mic']"},
		{Label: "muted toggle", Strategy: ByCSS, Selector: "[data-is-muted]"},
	}
	nameFieldQueries = []Query{
		{Label: "name field", Strategy: ByCSS, Selector: "input[type='text']"},
	}
	joinQueries = []Query{
		{Label: "join", Strategy: ByXPath, Selector: "//button[contains(., 'Join') or contains(., 'Ask to join')]"},
	}

	emailQuery    = Query{Label: "email", Strategy: ByName, Selector: "identifier"}
	nextQuery     = Query{Label: "next", Strategy: ByID, Selector: "identifierNext"}
	passwordQuery = Query{Label: "password", Strategy: ByName, Selector: "Passwd"}
)
