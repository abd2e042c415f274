package tts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

// espeak and say both default to roughly 175 words per minute.
const baseWordsPerMinute = 175.0

// Runner executes host speech commands.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("system tts timed out")
		}
		return fmt.Errorf("system tts failed: %w, output: %s", err, string(output))
	}
	return nil
}

// SystemTts speaks through the host's speech binary. The host has a single
// audio output, so every view shares one instance and one queue.
type SystemTts struct {
	binary  string
	runner  Runner
	catalog *Catalog
	queue   *playQueue
	logger  *logger.Log
}

// DetectSpeechBinary returns the first of espeak-ng, espeak or say on PATH.
func DetectSpeechBinary() (string, error) {
	for _, bin := range []string{"espeak-ng", "espeak", "say"} {
		if path, err := exec.LookPath(bin); err == nil {
			return path, nil
		}
	}
	return "", ErrNoSpeechBinary
}

func NewSystemTts(binary string, runner Runner) (*SystemTts, error) {
	if binary == "" {
		detected, err := DetectSpeechBinary()
		if err != nil {
			return nil, err
		}
		binary = detected
	}
	if runner == nil {
		runner = execRunner{}
	}

	s := &SystemTts{
		binary: binary,
		runner: runner,
		logger: logger.New(),
	}
	s.catalog = NewCatalog(s.listVoices)
	s.queue = newPlayQueue(s.play)
	return s, nil
}

// Start begins voice enumeration in the background.
func (s *SystemTts) Start(ctx context.Context) {
	s.catalog.Start(ctx)
}

func (s *SystemTts) isSay() bool {
	return filepath.Base(s.binary) == "say"
}

func (s *SystemTts) listVoices(ctx context.Context) ([]Voice, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.isSay() {
		out, err := s.runner.Output(ctx, s.binary, "-v", "?")
		if err != nil {
			return nil, fmt.Errorf("failed to list say voices: %w", err)
		}
		return parseSayVoices(out), nil
	}

	out, err := s.runner.Output(ctx, s.binary, "--voices")
	if err != nil {
		return nil, fmt.Errorf("failed to list espeak voices: %w", err)
	}
	return parseEspeakVoices(out), nil
}

// args builds the command line for one utterance.
func (s *SystemTts) args(u Utterance) []string {
	wpm := fmt.Sprintf("%.0f", baseWordsPerMinute*u.Rate)

	if s.isSay() {
		args := []string{"-r", wpm}
		if u.Voice != nil {
			args = append(args, "-v", u.Voice.Name)
		}
		// say has no pitch control
		return append(args, u.Text)
	}

	voice := primaryLang(u.Lang)
	if u.Voice != nil {
		voice = u.Voice.Name
	}
	pitch := int(u.Pitch * 50)
	if pitch > 99 {
		pitch = 99
	}
	args := []string{"-s", wpm, "-p", fmt.Sprintf("%d", pitch)}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	return append(args, "--", u.Text)
}

func (s *SystemTts) play(ctx context.Context, u Utterance) error {
	s.logger.Debug(fmt.Sprintf("speaking with %s [lang:%s, rate:%.1f, pitch:%.1f]",
		filepath.Base(s.binary), u.Language(), u.Rate, u.Pitch))
	return s.runner.Run(ctx, s.binary, s.args(u)...)
}

func (s *SystemTts) Voices() []Voice {
	return s.catalog.Voices()
}

func (s *SystemTts) VoicesChanged() <-chan struct{} {
	return s.catalog.VoicesChanged()
}

func (s *SystemTts) Cancel() {
	s.queue.cancel()
}

func (s *SystemTts) Enqueue(_ context.Context, u Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyText
	}
	return s.queue.push(u)
}

func (s *SystemTts) Platform(string, AudioSink) Platform {
	return s
}

func (s *SystemTts) Name() string {
	return "system (" + filepath.Base(s.binary) + ")"
}

func (s *SystemTts) Close() error {
	s.queue.close()
	return nil
}

// parseEspeakVoices reads `espeak-ng --voices` output:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  af              --/M      Afrikaans          gmw/af
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		voices = append(voices, Voice{Name: fields[3], Lang: normalizeLang(fields[1])})
	}
	return voices
}

var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

// parseSayVoices reads `say -v ?` output:
//
//	Alex                en_US    # Most people recognize me by my voice.
func parseSayVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := sayVoiceLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		voices = append(voices, Voice{Name: strings.TrimSpace(m[1]), Lang: normalizeLang(m[2])})
	}
	return voices
}
