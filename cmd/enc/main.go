// enc cifra o descifra valores con la misma cryptobox del runtime. Sirve para
// inspeccionar blobs de authorization_data en soporte.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/morphcore/internal/security/cryptobox"
)

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 3 {
		log.Fatal("uso: enc <encrypt|decrypt> <valor>")
	}
	secret := os.Getenv("MORPH_ENCRYPTION_SECRET")
	if secret == "" {
		log.Fatal("MORPH_ENCRYPTION_SECRET no seteado")
	}

	box, err := cryptobox.New(secret, 16)
	if err != nil {
		log.Fatalf("cryptobox: %v", err)
	}

	switch os.Args[1] {
	case "encrypt":
		out, err := box.EncryptValue(os.Args[2])
		if err != nil {
			log.Fatalf("encrypt: %v", err)
		}
		fmt.Println(out)
	case "decrypt":
		out, err := box.DecryptValue(os.Args[2])
		if err != nil {
			log.Fatalf("decrypt: %v", err)
		}
		fmt.Println(out)
	default:
		log.Fatalf("acción desconocida %q", os.Args[1])
	}
}
