package viewer

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rsniff/pkg/config"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestFindViewerBinaryIn_Found(t *testing.T) {
	// given
	tempDir, err := ioutil.TempDir("", "rsniff-viewer")
	assert.Nil(t, err)
	defer os.RemoveAll(tempDir)

	viewerPath := filepath.Join(tempDir, ViewerBinaryName)
	err = ioutil.WriteFile(viewerPath, []byte("#!/bin/sh\n"), 0755)
	assert.Nil(t, err)

	// when
	foundPath, err := FindViewerBinaryIn([]string{filepath.Join(tempDir, "missing"), viewerPath})

	// then
	assert.Nil(t, err)
	assert.Equal(t, viewerPath, foundPath)
}

func TestFindViewerBinaryIn_NotFound(t *testing.T) {
	// given
	lookupList := []string{"/nonexistent/sngrep"}

	// when
	_, err := FindViewerBinaryIn(lookupList)

	// then
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), ViewerBinaryName))
	assert.True(t, strings.Contains(err.Error(), "install"))
}

func TestLiveViewerService_PipePath(t *testing.T) {
	// given
	settings := &config.RsniffSettings{UserSpecifiedDevice: "admin@10.1.1.100"}

	// when
	viewerService := NewLiveViewerService(settings)

	// then
	assert.Equal(t, filepath.Join(config.CaptureDirName, "admin@10.1.1.100"), viewerService.PipePath())
}

func TestLiveViewerService_SetupAndCleanup(t *testing.T) {
	// given
	tempDir, err := ioutil.TempDir("", "rsniff-fifo")
	assert.Nil(t, err)
	defer os.RemoveAll(tempDir)

	previousWorkDir, err := os.Getwd()
	assert.Nil(t, err)
	assert.Nil(t, os.Chdir(tempDir))
	defer func() { _ = os.Chdir(previousWorkDir) }()

	settings := &config.RsniffSettings{UserSpecifiedDevice: "admin@10.1.1.100"}
	viewerService := NewLiveViewerService(settings)

	// when
	err = viewerService.Setup()

	// then
	assert.Nil(t, err)
	pipeInfo, err := os.Stat(viewerService.PipePath())
	assert.Nil(t, err)
	assert.NotZero(t, pipeInfo.Mode()&os.ModeNamedPipe)

	// when
	err = viewerService.Cleanup()

	// then
	assert.Nil(t, err)
	_, err = os.Stat(viewerService.PipePath())
	assert.True(t, os.IsNotExist(err))
}

func TestOpenPipeForWriting_ReaderAttached(t *testing.T) {
	// given
	tempDir, err := ioutil.TempDir("", "rsniff-pipe")
	assert.Nil(t, err)
	defer os.RemoveAll(tempDir)

	pipePath := filepath.Join(tempDir, "pipe")
	assert.Nil(t, unix.Mkfifo(pipePath, 0600))

	readerDone := make(chan []byte, 1)
	go func() {
		reader, err := os.OpenFile(pipePath, os.O_RDONLY, 0)
		if err != nil {
			readerDone <- nil
			return
		}
		defer reader.Close()

		data, _ := ioutil.ReadAll(reader)
		readerDone <- data
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// when
	pipe, err := OpenPipeForWriting(ctx, pipePath)

	// then
	assert.Nil(t, err)
	_, err = pipe.Write([]byte("hello"))
	assert.Nil(t, err)
	assert.Nil(t, pipe.Close())
	assert.Equal(t, []byte("hello"), <-readerDone)
}

func TestOpenPipeForWriting_NoReaderGivesUpOnCancel(t *testing.T) {
	// given
	tempDir, err := ioutil.TempDir("", "rsniff-pipe")
	assert.Nil(t, err)
	defer os.RemoveAll(tempDir)

	pipePath := filepath.Join(tempDir, "pipe")
	assert.Nil(t, unix.Mkfifo(pipePath, 0600))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// when
	begin := time.Now()
	_, err = OpenPipeForWriting(ctx, pipePath)
	elapsed := time.Since(begin)

	// then
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "no viewer attached"))
	assert.True(t, elapsed < 2*time.Second)
}

func TestLiveViewerService_SetupReplacesStalePipe(t *testing.T) {
	// given
	tempDir, err := ioutil.TempDir("", "rsniff-fifo")
	assert.Nil(t, err)
	defer os.RemoveAll(tempDir)

	previousWorkDir, err := os.Getwd()
	assert.Nil(t, err)
	assert.Nil(t, os.Chdir(tempDir))
	defer func() { _ = os.Chdir(previousWorkDir) }()

	settings := &config.RsniffSettings{UserSpecifiedDevice: "admin@10.1.1.100"}
	viewerService := NewLiveViewerService(settings)
	assert.Nil(t, viewerService.Setup())

	// when
	err = viewerService.Setup()

	// then
	assert.Nil(t, err)
	pipeInfo, err := os.Stat(viewerService.PipePath())
	assert.Nil(t, err)
	assert.NotZero(t, pipeInfo.Mode()&os.ModeNamedPipe)

	assert.Nil(t, viewerService.Cleanup())
}
