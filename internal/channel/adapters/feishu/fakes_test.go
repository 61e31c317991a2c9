package feishu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	receiveIDType string
	receiveID     string
	msgType       string
	content       string
}

type downloadCall struct {
	messageID    string
	fileKey      string
	resourceType string
}

// fakePlatform is a platformClient backed by in-memory maps.
type fakePlatform struct {
	mu        sync.Mutex
	sent      []sentMessage
	sendErr   error
	uploads   [][]byte
	uploadKey string
	uploadErr error
	resources map[string][]byte
	downloads []downloadCall
}

func (f *fakePlatform) SendMessage(_ context.Context, receiveIDType, receiveID, msgType, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{receiveIDType: receiveIDType, receiveID: receiveID, msgType: msgType, content: content})
	return nil
}

func (f *fakePlatform) UploadImage(_ context.Context, image io.Reader) (string, error) {
	data, err := io.ReadAll(image)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, data)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadKey, nil
}

func (f *fakePlatform) DownloadResource(_ context.Context, messageID, fileKey, resourceType string) (io.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, downloadCall{messageID: messageID, fileKey: fileKey, resourceType: resourceType})
	data, ok := f.resources[fileKey]
	if !ok {
		return nil, errors.New("resource not found")
	}
	return bytes.NewReader(data), nil
}

func (f *fakePlatform) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}
