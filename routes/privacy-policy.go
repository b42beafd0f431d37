package routes

import (
	"fmt"
	"net/http"
)

// PrivacyPolicyHandler serves the Privacy Policy content
func PrivacyPolicyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	// Serve Privacy Policy content as HTML
	html := `
	<!DOCTYPE html>
	<html lang="en">
	<head>
		<meta charset="UTF-8">
		<meta name="viewport" content="width=device-width, initial-scale=1.0">
		<title>Privacy Policy</title>
	</head>
	<body>
		<h1>Privacy Policy</h1>
		<p>Welcome to WinkWink. This Privacy Policy outlines how we collect, use, and protect your data.</p>
		<p>We store your profile, the people you wink at or pass on, your matches and the messages you exchange with them.</p>
		<p>Only matched users can see your chat messages and your profile picture in chat.</p>
		<p>Deleting your account removes your profile, your matches, and every conversation you took part in.</p>
		<p>Contact us at <a href="mailto:support@winkwink.app">support@winkwink.app</a> for questions.</p>
	</body>
	</html>
	`
	fmt.Fprint(w, html)
}
