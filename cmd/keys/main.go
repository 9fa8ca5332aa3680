package main

// Generates a fresh nostr identity and prints it in hex and bech32 form.
// Useful for provisioning NOSTR_SECRET_KEY without starting the daemon.
import (
	"fmt"
	"log"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/skip2/go-qrcode"
)

func main() {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		log.Fatal(err)
	}
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		log.Fatal(err)
	}
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("sk:  ", sk)
	fmt.Println("pk:  ", pk)
	fmt.Println("nsec:", nsec)
	fmt.Println("npub:", npub)

	qr, err := qrcode.New("nostr:"+npub, qrcode.Medium)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(qr.ToSmallString(false))
}
