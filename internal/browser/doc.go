// Package browser drives the Chrome session that joins a meeting.
//
// Driver is the UI-automation capability consumed by the rest of meetcap:
// open a page, grant media permissions, find visible elements, click or type
// into them, and read back the URL, page text, and screenshots. The chromedp
// implementation lives in chromedp.go; tests substitute a scripted driver.
//
// Session layers the meeting workflow on top of a Driver: optional Google
// sign-in, the join sequence with its prioritized optional queries and
// bounded join loop, and an ordered screenshot trail under the session's
// screenshots directory.
package browser
