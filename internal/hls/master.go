package hls

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// MasterPlaylistName is the entry point players load.
const MasterPlaylistName = "master.m3u8"

// RenderMasterPlaylist lists variants in ascending bandwidth order.
func RenderMasterPlaylist(variants []VariantResult) string {
	ordered := append([]VariantResult(nil), variants...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Bandwidth() < ordered[j].Bandwidth() })

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range ordered {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", v.Bandwidth(), v.Variant.Width, v.Variant.Height)
		b.WriteString(v.Playlist)
		b.WriteString("\n")
	}
	return b.String()
}

func writeMasterPlaylist(path string, variants []VariantResult) error {
	return os.WriteFile(path, []byte(RenderMasterPlaylist(variants)), 0o644)
}
