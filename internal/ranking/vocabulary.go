package ranking

// vocabulary is the curated word list for topic tags. Deliberately small:
// tags exist to group feed items by broad subject, not to be a taxonomy.
var vocabulary = map[string]bool{
	"algorithm":      true,
	"architecture":   true,
	"backend":        true,
	"career":         true,
	"cloud":          true,
	"coding":         true,
	"compiler":       true,
	"concurrency":    true,
	"containers":     true,
	"database":       true,
	"debugging":      true,
	"deployment":     true,
	"design":         true,
	"devops":         true,
	"distributed":    true,
	"docker":         true,
	"engineering":    true,
	"frontend":       true,
	"golang":         true,
	"infrastructure": true,
	"interview":      true,
	"javascript":     true,
	"kubernetes":     true,
	"learning":       true,
	"linux":          true,
	"machine":        true,
	"microservices":  true,
	"networking":     true,
	"performance":    true,
	"postgres":       true,
	"productivity":   true,
	"programming":    true,
	"python":         true,
	"react":          true,
	"redis":          true,
	"rust":           true,
	"scaling":        true,
	"security":       true,
	"software":       true,
	"startup":        true,
	"systems":        true,
	"testing":        true,
	"tutorial":       true,
	"typescript":     true,
}
