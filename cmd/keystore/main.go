// keystore 把 DuckDice API key 写入加密的 badger 存储，cmd/bot 启动时从这里读取。
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sushiomsky/duckdice-bot-sub000/pkg/secretstore"
)

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path (reads DUCKDICE_API_KEY)")
		apiKey    = flag.String("api-key", "", "api key (overrides -in)")
		dbPath    = flag.String("badger", getenv("SECRETSTORE_PATH", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("SECRETSTORE_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		remove    = flag.Bool("delete", false, "delete the stored api key")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set SECRETSTORE_KEY or pass -secret-key"))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if *remove {
		if err := ss.Delete(secretstore.APIKeyName); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "已删除 API key：%s\n", *dbPath)
		return
	}

	key := strings.TrimSpace(*apiKey)
	if key == "" {
		env, err := godotenv.Read(*inPath)
		if err != nil {
			fatal(err)
		}
		key = strings.TrimSpace(env["DUCKDICE_API_KEY"])
	}
	if key == "" {
		fatal(fmt.Errorf("no api key: pass -api-key or set DUCKDICE_API_KEY in %s", *inPath))
	}
	if err := ss.SetAPIKey(key); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "已写入 API key 到 badger：%s\n", *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
