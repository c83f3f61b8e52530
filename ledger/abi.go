package ledger

import "github.com/ethereum/go-ethereum/crypto"

// CollectibleABI is the subset of the collectible contract the minter calls
const CollectibleABI = `[
	{
		"type": "function",
		"name": "mintItem",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "uri", "type": "string"},
			{"name": "royaltyFeeNumerator", "type": "uint96"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "batchMintItems",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "uris", "type": "string[]"},
			{"name": "royaltyFeeNumerator", "type": "uint96"}
		],
		"outputs": [{"name": "", "type": "uint256[]"}]
	},
	{
		"type": "function",
		"name": "getNFTItemByTokenId",
		"stateMutability": "view",
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"outputs": [
			{
				"name": "",
				"type": "tuple",
				"components": [
					{"name": "tokenId", "type": "uint256"},
					{"name": "seller", "type": "address"},
					{"name": "owner", "type": "address"},
					{"name": "price", "type": "uint256"},
					{"name": "isListed", "type": "bool"},
					{"name": "tokenUri", "type": "string"}
				]
			}
		]
	},
	{
		"type": "event",
		"name": "Transfer",
		"anonymous": false,
		"inputs": [
			{"name": "from", "type": "address", "indexed": true},
			{"name": "to", "type": "address", "indexed": true},
			{"name": "tokenId", "type": "uint256", "indexed": true}
		]
	}
]`

const (
	MethodMintItem   = "mintItem"
	MethodBatchMint  = "batchMintItems"
	MethodGetNFTItem = "getNFTItemByTokenId"
)

// TransferTopic is topic 0 of the ERC-721 Transfer event
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
