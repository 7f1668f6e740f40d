package extract

import (
	"fmt"
	"strings"

	"github.com/albadl/albadl/internal/app"
)

// BuildArgs assembles the yt-dlp command line for a job. The output template
// pins the directory and base name while leaving the extension to the tool,
// which may go through intermediate containers before the merge step.
func BuildArgs(job app.Job, outputTemplate, ffmpegPath string, subtitleLangs []string) []string {
	args := []string{
		"--output", outputTemplate,
		"--no-part",
		"--newline",
	}
	if job.Playlist {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args,
		"--add-header", "referer: https://www.youtube.com",
		"--add-header", "user-agent: Mozilla/5.0",
	)
	if ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", ffmpegPath)
	}
	if len(subtitleLangs) > 0 {
		args = append(args,
			"--write-subs",
			"--sub-langs", strings.Join(subtitleLangs, ","),
			"--sub-format", "best",
		)
	}

	if job.Format == app.FormatMP3 {
		args = append(args,
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", "0",
			"--format", "bestaudio/best",
		)
	} else {
		format := "bv*+ba/b"
		if h := job.Quality.Height(); h > 0 {
			format = fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]/b", h, h)
		}
		args = append(args,
			"--format", format,
			"--merge-output-format", "mp4",
		)
	}

	args = append(args, job.URL)
	return args
}
