package server

import (
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Built-in connection screens, used when no text directory is configured or
// the files are missing. One of the two is picked at random per connection.
const builtinScreen1 = "\r\n" +
	"  _____                                        _ _\r\n" +
	" |_   _| __ __ _ _   _ _ __ _____      _____ | | |_\r\n" +
	"   | || '__/ _` | | | | '_ ` _ \\ \\ /\\ / / _ \\| | __|\r\n" +
	"   | || | | (_| | |_| | | | | | \\ V  V /  __/| | |_\r\n" +
	"   |_||_|  \\__,_|\\__,_|_| |_| |_|\\_/\\_/ \\___||_|\\__|\r\n" +
	"\r\n" +
	"        A world spun from dreams.\r\n" +
	"\r\n" +
	"   connect <account> <password>   to enter\r\n" +
	"   create <account> <password>    to register\r\n" +
	"   who                            to see who is awake\r\n" +
	"   quit                           to leave\r\n"

const builtinScreen2 = "\r\n" +
	"   .-.-. .-.-. .-.-. .-.-. .-.-. .-.-. .-.-. .-.-. .-.-.\r\n" +
	"    \\   \\ \\   \\ \\   \\ \\   \\ \\   \\ \\   \\ \\   \\ \\   \\ \\   \\\r\n" +
	"     '-'-' '-'-' '-'-' '-'-' '-'-' '-'-' '-'-' '-'-' '-'-'\r\n" +
	"\r\n" +
	"               T  R  A  U  M  W  E  L  T\r\n" +
	"\r\n" +
	"          The gates open for the dreaming.\r\n" +
	"\r\n" +
	"   connect <account> <password>   to enter\r\n" +
	"   create <account> <password>    to register\r\n"

// TextFiles serves the server's flat text assets: the connection screens,
// the message of the day, and the quit text. When a text directory exists
// the files are loaded from it and reloaded on change, so screen edits do
// not require a restart.
type TextFiles struct {
	mu      sync.RWMutex
	dir     string
	screens []string
	motd    string
	quit    string
	watcher *fsnotify.Watcher
}

// NewTextFiles loads the text assets from dir. A missing or empty dir falls
// back to the built-in screens.
func NewTextFiles(dir string) *TextFiles {
	tf := &TextFiles{dir: dir}
	tf.load()
	return tf
}

func (tf *TextFiles) load() {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	tf.screens = nil
	tf.motd = ""
	tf.quit = ""

	if tf.dir != "" {
		for _, name := range []string{"connect1.txt", "connect2.txt"} {
			if data, err := os.ReadFile(filepath.Join(tf.dir, name)); err == nil {
				tf.screens = append(tf.screens, normalizeText(string(data)))
			}
		}
		if data, err := os.ReadFile(filepath.Join(tf.dir, "motd.txt")); err == nil {
			tf.motd = normalizeText(string(data))
		}
		if data, err := os.ReadFile(filepath.Join(tf.dir, "quit.txt")); err == nil {
			tf.quit = normalizeText(string(data))
		}
	}

	if len(tf.screens) == 0 {
		tf.screens = []string{builtinScreen1, builtinScreen2}
	}
}

// normalizeText rewrites bare newlines to \r\n for telnet clients.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// Watch starts reloading the text directory on file changes. Call Close to
// stop the watcher.
func (tf *TextFiles) Watch() error {
	if tf.dir == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(tf.dir); err != nil {
		w.Close()
		return err
	}
	tf.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Printf("textfiles: %s changed, reloading", ev.Name)
					tf.load()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("textfiles: watch error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher.
func (tf *TextFiles) Close() {
	if tf.watcher != nil {
		tf.watcher.Close()
		tf.watcher = nil
	}
}

// ConnectScreen returns one of the connection screens at random.
func (tf *TextFiles) ConnectScreen() string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return tf.screens[rand.Intn(len(tf.screens))]
}

// MOTD returns the message of the day, or "".
func (tf *TextFiles) MOTD() string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return tf.motd
}

// QuitText returns the goodbye text, or "".
func (tf *TextFiles) QuitText() string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return tf.quit
}
