package youtube

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// apiLister is the production VideoLister over the YouTube Data API v3.
type apiLister struct {
	service *yt.Service
}

// NewAPILister creates a VideoLister authenticated by API key.
func NewAPILister(ctx context.Context, apiKey string) (VideoLister, error) {
	service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &apiLister{service: service}, nil
}

// ListVideos fetches up to 50 videos in one call with the snippet,
// contentDetails, and statistics parts.
func (a *apiLister) ListVideos(ctx context.Context, videoIDs []string) ([]*yt.Video, error) {
	resp, err := a.service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoIDs...).
		MaxResults(int64(len(videoIDs))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}
