package models

// ChatMessage is one message of an assistant conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by the chat endpoint
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatResponse is always returned by the chat endpoint, even on upstream failure
type ChatResponse struct {
	Message string `json:"message"`
}

// VideoLookupRequest is the body accepted by the metadata lookup endpoint
type VideoLookupRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Format  string `json:"format"`
}

// VideoInfo is the metadata returned for a looked-up video
type VideoInfo struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
	VideoID   string `json:"videoId"`
}

// VideoLookupResponse is the success payload of the metadata lookup endpoint
type VideoLookupResponse struct {
	Success     bool      `json:"success"`
	VideoInfo   VideoInfo `json:"videoInfo"`
	DownloadURL string    `json:"downloadUrl"`
	Message     string    `json:"message"`
}
