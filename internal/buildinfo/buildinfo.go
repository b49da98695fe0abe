package buildinfo

// Set at link time via -ldflags "-X tripmatch/internal/buildinfo.Version=..."
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "name":    "tripmatch",
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}
