package models

// Upload is a file received over HTTP. It only lives for one request.
type Upload struct {
	Data     []byte
	MimeType string
	FileName string
}

type OCRResult struct {
	FileName    string `json:"fileName"`
	TextContent string `json:"textContent"`
}

// OAuthCredential is the content of the token file written after the first
// interactive authorization.
type OAuthCredential struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

type DriveFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
